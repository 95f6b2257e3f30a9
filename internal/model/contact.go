// internal/model/contact.go
package model

// Contact is one dialable entry of a contact source. Key is the stable insertion
// position inside the source and defines dial order.
type Contact struct {
	Key        int64  `db:"id" json:"key"`
	ListID     string `db:"list_id" json:"list_id,omitempty"`
	ExternalID string `db:"external_id" json:"id,omitempty"`
	Name       string `db:"name" json:"name"`
	Phone      string `db:"phone" json:"phone"`
	Email      string `db:"email" json:"email"`
	DoNotCall  bool   `db:"do_not_call" json:"do_not_call"`
}
