package middleware

import "github.com/gin-gonic/gin"

// unmatchedRoute labels requests that matched no route.
const unmatchedRoute = "unmatched"

// Counter counts requests under a label.
type Counter interface {
	Increment(label string)
}

// CountRequests returns a middleware that counts every request under its
// route template, so unknown paths cannot grow the label set.
func CountRequests(counter Counter) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		counter.Increment(routeLabel(c))
	}
}

func routeLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return unmatchedRoute
}

// pathSet is a set of request paths a middleware passes through untouched.
type pathSet map[string]struct{}

func newPathSet(paths []string) pathSet {
	set := make(pathSet, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set
}

func (s pathSet) has(c *gin.Context) bool {
	_, ok := s[c.Request.URL.Path]
	return ok
}
