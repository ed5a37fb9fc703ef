package sqldb

import "database/sql"

type Object struct {
	ID        int64        `db:"id" json:"id"`
	Dn        string       `db:"dn" json:"dn"`
	DnNorm    string       `db:"dn_norm" json:"dn_norm"`
	ParentDn  string       `db:"parent_dn" json:"parent_dn"`
	Guid      string       `db:"guid" json:"guid"`
	CreatedAt sql.NullTime `db:"created_at" json:"created_at"`
	UpdatedAt sql.NullTime `db:"updated_at" json:"updated_at"`
	DeletedAt sql.NullTime `db:"deleted_at" json:"deleted_at"`
}

type Attribute struct {
	ID       int64  `db:"id" json:"id"`
	ObjectID int64  `db:"object_id" json:"object_id"`
	Name     string `db:"name" json:"name"`
	NameNorm string `db:"name_norm" json:"name_norm"`
}

type AttributeValue struct {
	ID          int64           `db:"id" json:"id"`
	AttributeID int64           `db:"attribute_id" json:"attribute_id"`
	Value       string          `db:"value" json:"value"`
	ValueNorm   string          `db:"value_norm" json:"value_norm"`
	ValueNum    sql.NullFloat64 `db:"value_num" json:"value_num"`
}
