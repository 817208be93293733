package assets

// Loader reads one kind of asset from disk.
type Loader[T any] interface {
	Load(path string) (T, error)
}
