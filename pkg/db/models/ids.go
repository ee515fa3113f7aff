package models

import "github.com/google/uuid"

// assignID fills a zero primary key so inserts work on databases without a
// uuid default expression.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
