// Package docstore defines the key-path document store the ledger persists
// into, the deterministic path layout of the three ledger documents, and a
// typed repository on top of the raw store.
//
// The store offers no multi-document transactions. Every write is a
// whole-document replacement, and two concurrent read-modify-write cycles on
// the same path are a lost-update hazard; callers serialize writers per day
// key (see the ledger service).
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store is the key-path object store contract. Get returns a NOT_FOUND
// AppError when the document is absent; Put replaces the whole document.
type Store interface {
	Get(ctx context.Context, path string) (json.RawMessage, error)
	Put(ctx context.Context, path string, doc json.RawMessage) error

	// List returns the paths of the documents directly under the given
	// directory, ascending by file name.
	List(ctx context.Context, dir string) ([]string, error)
}

// Path layout:
//
//	<tenant>/ledger/<store>/<year>/<month>/<day>.doc   daily
//	<tenant>/ledger/<store>/<year>/<month>.doc         monthly
//	<tenant>/ledger/<store>/<year>.doc                 yearly

// DailyPath returns the path of the daily document for a YYYY-MM-DD date.
func DailyPath(tenantID, storeID, date string) string {
	return fmt.Sprintf("%s/ledger/%s/%s/%s/%s.doc", tenantID, storeID, date[:4], date[5:7], date[8:10])
}

// MonthlyPath returns the path of the monthly document for a YYYY-MM month.
func MonthlyPath(tenantID, storeID, month string) string {
	return fmt.Sprintf("%s/ledger/%s/%s/%s.doc", tenantID, storeID, month[:4], month[5:7])
}

// YearlyPath returns the path of the yearly document for a YYYY year.
func YearlyPath(tenantID, storeID, year string) string {
	return fmt.Sprintf("%s/ledger/%s/%s.doc", tenantID, storeID, year)
}

// MonthDir returns the directory holding a month's daily documents.
func MonthDir(tenantID, storeID, month string) string {
	return fmt.Sprintf("%s/ledger/%s/%s/%s", tenantID, storeID, month[:4], month[5:7])
}

// YearDir returns the directory holding a year's monthly documents.
func YearDir(tenantID, storeID, year string) string {
	return fmt.Sprintf("%s/ledger/%s/%s", tenantID, storeID, year)
}
