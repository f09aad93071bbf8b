// Package memory provides a read-only identity lookup over users declared in
// configuration. It is used for development and test deployments where no
// directory service is available.
//
// The lookup owns a sorted index of usernames built once at construction, so
// Search returns stable results without touching any other component's state.
//
//	lookup, err := memory.NewLookup([]memory.User{
//		{Username: "admin", Roles: []string{"ADMIN"}},
//	})
//	identity, ok := lookup.Retrieve("admin")
package memory
