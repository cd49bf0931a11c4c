package cache

// PreviewKey identifies one rendered region preview.
type PreviewKey struct {
	Seed   int64
	Scale  uint
	World  uint64 // rivermap.World fingerprint
	X      int32
	Z      int32
	Size   int
	Format string
}

type Cache interface {
	Get(key PreviewKey) ([]byte, bool)
	Set(key PreviewKey, value []byte)
	Has(key PreviewKey) bool // Check if a preview exists without reading it
	Clear()
}
