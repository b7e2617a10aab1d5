package jobs

import gonanoid "github.com/matoous/go-nanoid/v2"

// newID returns a short, URL-safe, collision-resistant job id
// (the library's default alphabet and 21-character length).
func newID() (string, error) {
	return gonanoid.New()
}
