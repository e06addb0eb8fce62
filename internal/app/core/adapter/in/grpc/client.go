package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	grpcpkg "github.com/JoeShih716/go-ledger-engine/pkg/grpc"
)

// Client LedgerService 的呼叫端，userID 以 x-user-id 傳遞
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, userID, method string, in, out any) error {
	ctx = metadata.AppendToOutgoingContext(ctx, UserIDHeader, userID)
	return c.cc.Invoke(ctx, fullMethod(method), in, out, grpc.CallContentSubtype(grpcpkg.JSONCodecName))
}

func (c *Client) CreateAccount(ctx context.Context, userID string, req *CreateAccountRequest) (*Account, error) {
	out := new(Account)
	if err := c.invoke(ctx, userID, "CreateAccount", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListAccounts(ctx context.Context, userID string) (*ListAccountsResponse, error) {
	out := new(ListAccountsResponse)
	if err := c.invoke(ctx, userID, "ListAccounts", &ListAccountsRequest{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Deposit(ctx context.Context, userID string, req *DepositRequest) (*Record, error) {
	out := new(Record)
	if err := c.invoke(ctx, userID, "Deposit", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Withdraw(ctx context.Context, userID string, req *WithdrawRequest) (*Record, error) {
	out := new(Record)
	if err := c.invoke(ctx, userID, "Withdraw", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Transfer(ctx context.Context, userID string, req *TransferRequest) (*TransferResponse, error) {
	out := new(TransferResponse)
	if err := c.invoke(ctx, userID, "Transfer", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetHistory(ctx context.Context, userID string, req *GetHistoryRequest) (*GetHistoryResponse, error) {
	out := new(GetHistoryResponse)
	if err := c.invoke(ctx, userID, "GetHistory", req, out); err != nil {
		return nil, err
	}
	return out, nil
}
