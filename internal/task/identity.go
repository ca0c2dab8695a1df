package task

import (
	"crypto/sha256"
	"encoding/hex"
	"reflect"
)

// Identity is a stable, content-derived identifier for a task type.
// Every instance of the same concrete type yields the same Identity,
// across repeated construction and across process restarts.
type Identity string

// IdentityOf derives the Identity from the task's fully-qualified concrete
// type path (import path + type name), hashed for a filesystem- and
// SQL-friendly fixed-width key.
func IdentityOf(t Task) Identity {
	rt := reflect.TypeOf(t)
	for rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	qualified := rt.PkgPath() + "." + rt.Name()
	sum := sha256.Sum256([]byte(qualified))
	return Identity(hex.EncodeToString(sum[:16]))
}
