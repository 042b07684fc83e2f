// Package common holds types shared between shop packages.
package common

import "time"

// Entity is embedded by every stored record.
type Entity struct {
	ID      string    `json:"id"`
	Created time.Time `json:"created"`
}

// Money is an amount in minor units.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}
