package api_test

import (
	"fmt"

	"github.com/petrijr/weft/pkg/api"
)

// ExampleMaybe shows that a chain of ready values settles without leaving
// the calling goroutine, while a deferred link makes the whole chain deferred.
func ExampleMaybe() {
	ready := api.Map(api.Ready("weft"), func(s string) string { return s + "!" })
	fmt.Println(ready.IsDeferred())

	deferred := api.AndThen(api.Go(func() (int, error) { return 20, nil }), func(n int) api.Maybe[int] {
		return api.Ready(n + 1)
	})
	v, err := deferred.Get()
	fmt.Println(deferred.IsDeferred(), v, err)

	// Output:
	// false
	// true 21 <nil>
}
