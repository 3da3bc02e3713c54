package storage

import "errors"

// ErrOrderNotFound is returned when a status transition targets an order id
// with no stored row.
var ErrOrderNotFound = errors.New("tracked order not found")

// ErrInvalidTransition is returned when a status change would leave the
// pending -> {executed, cancelled} DAG.
var ErrInvalidTransition = errors.New("invalid order status transition")
