// Package client talks to a running imstored over its Unix socket.
package client

import (
	"context"
	"fmt"

	"github.com/matheus3301/imstore/internal/api"
	"github.com/matheus3301/imstore/internal/query"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn *grpc.ClientConn
}

// Result is a decoded Query response.
type Result struct {
	Columns []string
	Rows    []query.Values
	Notify  string
}

// Change is one notification from Watch.
type Change struct {
	ID      string
	Locator string
	Origin  string
}

// New dials the daemon's Unix domain socket.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, req map[string]any) (map[string]any, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, api.Method(method), in, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// Query reads rows from locator.
func (c *Client) Query(ctx context.Context, locator string, spec query.Spec) (*Result, error) {
	resp, err := c.call(ctx, "Query", map[string]any{
		"locator": locator,
		"spec":    encodeSpec(spec),
	})
	if err != nil {
		return nil, err
	}
	res := &Result{}
	res.Notify, _ = resp["notify"].(string)
	cols, _ := resp["columns"].([]any)
	for _, col := range cols {
		s, _ := col.(string)
		res.Columns = append(res.Columns, s)
	}
	rows, _ := resp["rows"].([]any)
	for _, r := range rows {
		m, _ := r.(map[string]any)
		vals, err := api.DecodeValues(m)
		if err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, vals)
	}
	return res, nil
}

// Insert creates a row and returns its locator, empty when nothing was
// created.
func (c *Client) Insert(ctx context.Context, locator string, vals query.Values) (string, error) {
	resp, err := c.call(ctx, "Insert", map[string]any{
		"locator": locator,
		"values":  api.EncodeValues(vals),
	})
	if err != nil {
		return "", err
	}
	loc, _ := resp["locator"].(string)
	return loc, nil
}

// Update changes matching rows and returns how many changed.
func (c *Client) Update(ctx context.Context, locator string, vals query.Values, where query.Expr) (int64, error) {
	req := map[string]any{
		"locator": locator,
		"values":  api.EncodeValues(vals),
	}
	if w := encodeExpr(where); w != nil {
		req["where"] = w
	}
	return c.count(ctx, "Update", req)
}

// Delete removes matching rows and returns how many were removed.
func (c *Client) Delete(ctx context.Context, locator string, where query.Expr) (int64, error) {
	req := map[string]any{"locator": locator}
	if w := encodeExpr(where); w != nil {
		req["where"] = w
	}
	return c.count(ctx, "Delete", req)
}

// Type returns the content type of locator.
func (c *Client) Type(ctx context.Context, locator string) (string, error) {
	resp, err := c.call(ctx, "Type", map[string]any{"locator": locator})
	if err != nil {
		return "", err
	}
	t, _ := resp["type"].(string)
	return t, nil
}

// Watch streams change notifications under locator until ctx ends. The
// returned channel closes when the stream ends.
func (c *Client) Watch(ctx context.Context, locator string) (<-chan Change, error) {
	desc := &api.ServiceDesc.Streams[0]
	stream, err := c.conn.NewStream(ctx, desc, api.Method("Watch"))
	if err != nil {
		return nil, err
	}
	in, err := structpb.NewStruct(map[string]any{"locator": locator})
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	out := make(chan Change)
	go func() {
		defer close(out)
		for {
			msg := new(structpb.Struct)
			if err := stream.RecvMsg(msg); err != nil {
				return
			}
			f := msg.GetFields()
			ch := Change{
				ID:      f["id"].GetStringValue(),
				Locator: f["locator"].GetStringValue(),
				Origin:  f["origin"].GetStringValue(),
			}
			select {
			case out <- ch:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Status returns the connection state name of acct.
func (c *Client) Status(ctx context.Context, acct int64) (string, error) {
	resp, err := c.call(ctx, "Status", map[string]any{"account": float64(acct)})
	if err != nil {
		return "", err
	}
	st, _ := resp["state"].(string)
	return st, nil
}

// Transition moves acct to the named connection state and returns the new
// state name.
func (c *Client) Transition(ctx context.Context, acct int64, state string) (string, error) {
	resp, err := c.call(ctx, "Transition", map[string]any{
		"account": float64(acct),
		"state":   state,
	})
	if err != nil {
		return "", err
	}
	st, _ := resp["state"].(string)
	return st, nil
}

// SetPresence records the presence mode of an online account.
func (c *Client) SetPresence(ctx context.Context, acct int64, mode int) error {
	_, err := c.call(ctx, "SetPresence", map[string]any{
		"account": float64(acct),
		"mode":    float64(mode),
	})
	return err
}

// Enqueue appends an outgoing message and returns its sequence id.
func (c *Client) Enqueue(ctx context.Context, typ string, data []byte) (int64, error) {
	resp, err := c.call(ctx, "Enqueue", map[string]any{
		"type": typ,
		"data": api.EncodeValue(data),
	})
	if err != nil {
		return 0, err
	}
	n, _ := resp["sequence_id"].(float64)
	return int64(n), nil
}

func (c *Client) count(ctx context.Context, method string, req map[string]any) (int64, error) {
	resp, err := c.call(ctx, method, req)
	if err != nil {
		return 0, err
	}
	n, _ := resp["count"].(float64)
	return int64(n), nil
}

func encodeExpr(e query.Expr) map[string]any {
	m := e.Map()
	if m == nil {
		return nil
	}
	encodeOperands(m)
	return m
}

func encodeSpec(s query.Spec) map[string]any {
	m := s.Map()
	if w, ok := m["where"].(map[string]any); ok {
		encodeOperands(w)
	}
	if l, ok := m["limit"].(int); ok {
		m["limit"] = float64(l)
	}
	return m
}

// encodeOperands rewrites expression operands in place into Struct-safe
// values.
func encodeOperands(m map[string]any) {
	if v, ok := m["val"]; ok {
		m["val"] = api.EncodeValue(v)
	}
	if vs, ok := m["vals"].([]any); ok {
		for i, v := range vs {
			vs[i] = api.EncodeValue(v)
		}
	}
	if as, ok := m["args"].([]any); ok {
		for _, a := range as {
			if am, ok := a.(map[string]any); ok {
				encodeOperands(am)
			}
		}
	}
}
