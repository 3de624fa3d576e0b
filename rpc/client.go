// Package rpc connects the delta engine to a live chain node.
package rpc

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/chainlens/chainlens/delta"
	"github.com/chainlens/chainlens/logger"
)

// Client is a delta.ChainReader backed by the JSON-RPC endpoint of a chain
// node. Historical balance queries require the node to keep state for the
// queried heights, i.e. an archive node for anything but recent blocks.
type Client struct {
	*ethclient.Client
	url string
	log logger.Logger
}

// Connect dials the given JSON-RPC endpoint.
func Connect(ctx context.Context, url string, log logger.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to %s; %w", url, err)
	}
	log.Debugf("connected to %s", url)
	return &Client{Client: eth, url: url, log: log}, nil
}

// URL returns the endpoint this client is connected to.
func (c *Client) URL() string {
	return c.url
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.Client.Close()
	c.log.Debugf("disconnected from %s", c.url)
}

// compile-time check that the client serves the delta engine
var _ delta.ChainReader = (*Client)(nil)
