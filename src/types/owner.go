package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
)

// Owner is either nobody or a single user. The zero value is nobody.
//
// Orders and tickets store it in a nullable owner_id column; the column is
// NULL exactly when the owner is absent.
type Owner struct {
	userID uint
	set    bool
}

func NoOwner() Owner {
	return Owner{}
}

func UserOwner(id uint) Owner {
	return Owner{userID: id, set: id != 0}
}

func (o Owner) Present() bool {
	return o.set
}

// UserID returns the owning user and whether there is one.
func (o Owner) UserID() (uint, bool) {
	return o.userID, o.set
}

func (o Owner) Is(id uint) bool {
	return o.set && o.userID == id
}

func (o Owner) String() string {
	if !o.set {
		return "none"
	}
	return fmt.Sprintf("user(%d)", o.userID)
}

func (o Owner) Value() (driver.Value, error) {
	if !o.set {
		return nil, nil
	}
	return int64(o.userID), nil
}

func (o *Owner) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*o = NoOwner()
	case int64:
		*o = UserOwner(uint(v))
	case int32:
		*o = UserOwner(uint(v))
	case uint64:
		*o = UserOwner(uint(v))
	case []byte:
		return o.scanString(string(v))
	case string:
		return o.scanString(v)
	default:
		return fmt.Errorf("cannot scan %T into Owner", value)
	}
	return nil
}

func (o *Owner) scanString(s string) error {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("cannot scan %q into Owner: %w", s, err)
	}
	*o = UserOwner(uint(id))
	return nil
}

func (o Owner) MarshalJSON() ([]byte, error) {
	if !o.set {
		return []byte("null"), nil
	}
	return json.Marshal(o.userID)
}

func (o *Owner) UnmarshalJSON(b []byte) error {
	var id *uint
	if err := json.Unmarshal(b, &id); err != nil {
		return err
	}
	if id == nil {
		*o = NoOwner()
		return nil
	}
	*o = UserOwner(*id)
	return nil
}

// GormDataType keeps the column an integer on every dialect.
func (Owner) GormDataType() string {
	return "bigint"
}
