package capture

// Image is a single captured or picked photo. It is created per capture
// action, consumed exactly once by detection, and discarded afterwards.
type Image struct {
	// URI is the device-local location of the photo.
	URI string
	// Width and Height are optional; 0 means unknown.
	Width  int
	Height int
	// Bytes holds the raw JPEG data when the capture source provides it.
	Bytes []byte
}
