package appserver

import (
	"context"
	"fmt"

	"appserver-client/internal/domain"
)

// Initialize sends initialize and decodes the peer's answer.
func (c *Client) Initialize(ctx context.Context, params InitializeParams) (InitializeResult, error) {
	return Call[InitializeResult](ctx, c, domain.MethodInitialize, params)
}

// Initialized sends the initialized notification (no params).
func (c *Client) Initialized(ctx context.Context) error {
	return c.Notify(ctx, domain.MethodInitialized, nil)
}

// Handshake runs Initialize followed by Initialized.
func (c *Client) Handshake(ctx context.Context, params InitializeParams) (InitializeResult, error) {
	res, err := c.Initialize(ctx, params)
	if err != nil {
		return InitializeResult{}, err
	}
	if err := c.Initialized(ctx); err != nil {
		return InitializeResult{}, err
	}
	return res, nil
}

// Call encodes params (nil omits them), calls method and decodes the result
// into T.
func Call[T any](ctx context.Context, c *Client, method string, params any) (T, error) {
	return typedCall[T](ctx, method, params, c.Call)
}

// CallWithRetry is Call retried on rate-limit errors.
func CallWithRetry[T any](ctx context.Context, c *Client, method string, params any) (T, error) {
	return typedCall[T](ctx, method, params, c.CallWithRetry)
}

func typedCall[T any](ctx context.Context, method string, params any,
	call func(context.Context, string, *JSONValue) (JSONValue, error)) (T, error) {
	var out T
	p, err := encodeParams(params)
	if err != nil {
		return out, err
	}
	res, err := call(ctx, method, p)
	if err != nil {
		return out, err
	}
	if err := res.Decode(&out); err != nil {
		return out, fmt.Errorf("decode %s result: %w", method, err)
	}
	return out, nil
}

func encodeParams(params any) (*JSONValue, error) {
	if params == nil {
		return nil, nil
	}
	if p, ok := params.(*JSONValue); ok {
		return p, nil
	}
	v, err := domain.ValueOf(params)
	if err != nil {
		return nil, domain.NewClientError("appserver.Call", domain.ErrEncodeFailure, err.Error())
	}
	return &v, nil
}

// DecodeParams decodes the params of a notification or peer request into T.
// Absent params decode as {}.
func DecodeParams[T any](msg InboundMessage) (T, error) {
	var out T
	var err error
	switch msg.Kind {
	case InboundNotification:
		err = msg.Notification.DecodeParams(&out)
	case InboundRequest:
		err = msg.Request.DecodeParams(&out)
	default:
		err = fmt.Errorf("appserver: %s message has no params", msg.Kind)
	}
	return out, err
}
