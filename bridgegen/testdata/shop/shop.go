// Package shop exercises most of the shapes discovery and collection support.
package shop

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/broady/bridge"
	"github.com/broady/bridge/bridgegen/testdata/shop/common"
)

// Status is an order state.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Priority orders work.
type Priority int

const (
	Low Priority = iota
	High
	Urgent = High
)

// Order is a placed order. Reference fields are optional unless marked.
//
//bridge:nullable
type Order struct {
	common.Entity
	Status   Status            `json:"status"`
	Priority Priority          `json:"priority"`
	Items    []Item            `json:"items"`
	Note     *string           `json:"note"`
	Customer *Customer         `json:"customer" bridge:"nonnull"`
	Tags     map[string]string `json:"tags"`
	Total    common.Money      `json:"total"`
	Token    uuid.UUID         `json:"token"`
	Extra    json.RawMessage   `json:"extra"`
	TTL      time.Duration     `json:"ttl"`
	Secret   string            `json:"-"`
	Internal string            `bridge:"-"`
	version  int
}

// Item is one order line.
type Item struct {
	SKU    string `json:"sku"`
	Qty    int    `json:"qty"`
	Parent *Item  `json:"parent"`
}

// Customer places orders.
type Customer struct {
	Name   string
	Orders []Order `bridge:"nullable"`
	Notes  []string
}

// Page is one page of results.
type Page[T any] struct {
	Items []T    `json:"items"`
	Next  string `json:"next"`
}

// OrderService manages orders.
//
//bridge:service Orders
type OrderService struct{}

// Get returns one order.
func (*OrderService) Get(ctx context.Context, id string) (*Order, error) {
	return nil, errors.New("not implemented")
}

// List returns a page of orders with the given status.
func (*OrderService) List(ctx context.Context, call *bridge.CallContext, status Status, limit int) (Page[Order], error) {
	return Page[Order]{}, nil
}

// Watch resolves when the order changes.
func (*OrderService) Watch(id string) bridge.Future[Order] {
	return bridge.Resolved(Order{})
}

// Close closes an order.
func (*OrderService) Close(id string) <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Items streams all items.
func (*OrderService) Items() iter.Seq[Item] {
	return func(func(Item) bool) {}
}

// Touch marks orders as seen and reports how many it touched.
func (*OrderService) Touch(ids ...string) (int, error) { return len(ids), nil }

// Debug is for operators only.
//
//bridge:ignore
func (*OrderService) Debug() string { return "" }

func (*OrderService) String() string { return "orders" }

// Pair has an unsupported result list.
func (*OrderService) Pair() (int, string) { return 0, "" }

func (*OrderService) internal() {}

// OrderCreated is pushed when an order is placed.
//
//bridge:event order-created
type OrderCreated struct {
	Order Order `json:"order"`
}

// Heartbeat is pushed periodically.
//
//bridge:event heartbeat
type Heartbeat struct {
	At time.Time `json:"at"`
}
