package macroscan

import (
	"github.com/jward/macroscan/internal/store"
	"github.com/jward/macroscan/internal/transform"
)

// Public type aliases for internal types used in the API.

type Output = transform.Output
type Replace = transform.Replace
type Removal = transform.Removal
type Filter = transform.Filter

type Store = store.Store
type File = store.File
type Run = store.Run
