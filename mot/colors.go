package mot

// overlayColors is the palette used for display overlays
var overlayColors = []string{"red", "blue", "green", "yellow", "purple", "orange"}

// OverlayColor returns display color for the i-th live object (insertion order)
func OverlayColor(i int) string {
	if i < 0 {
		i = -i
	}
	return overlayColors[i%len(overlayColors)]
}
