package database

import "time"

// ObjectRecord represents a row in the objects table. Deleted objects are
// kept as tombstones with DeletedAt set.
type ObjectRecord struct {
	ID        int64
	DN        string
	DNNorm    string
	ParentDN  string
	GUID      string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// NewObject carries the identity of an object about to be inserted.
type NewObject struct {
	DN       string
	DNNorm   string
	ParentDN string
	GUID     string
}

// AttributeRecord is one attribute of an object with its values in
// insertion order.
type AttributeRecord struct {
	Name   string
	Values []string
}

// ReferenceRecord identifies a stored value that equals a looked-up value,
// together with the object and attribute holding it.
type ReferenceRecord struct {
	ValueID       int64
	AttributeID   int64
	ObjectID      int64
	ObjectDN      string
	AttributeName string
}
