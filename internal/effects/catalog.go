package effects

import (
	"fmt"
)

// frame describes the geometry one effect renders into.
type frame struct {
	W, H   int // output frame
	FW, FH int // foreground, fitted inside the frame
	FPS    int
	Dur    float64
}

func (f frame) frames() int {
	n := int(f.Dur * float64(f.FPS))
	if n < 1 {
		n = 1
	}
	return n
}

// Effect renders the foreground layer. The filter chain reads [fg_in] and must
// produce an FWxFH stream.
type Effect struct {
	Name       string
	foreground func(f frame) string
}

const zoomMax = 1.15

func zoompan(f frame, z, x, y string) string {
	return fmt.Sprintf("scale=%d:%d,zoompan=z='%s':x='%s':y='%s':d=1:s=%dx%d:fps=%d",
		f.FW*2, f.FH*2, z, x, y, f.FW, f.FH, f.FPS)
}

// panCrop scales the foreground up and slides a frame-sized window across it.
func panCrop(f frame, x, y string) string {
	return fmt.Sprintf("scale=%d:%d,crop=%d:%d:x='%s':y='%s'",
		even(float64(f.FW)*zoomMax), even(float64(f.FH)*zoomMax), f.FW, f.FH, x, y)
}

// Catalog lists every effect. Order here is only the default; synthesis shuffles it.
var Catalog = []Effect{
	{Name: "kenburns", foreground: func(f frame) string {
		n := f.frames()
		return zoompan(f,
			fmt.Sprintf("1+%.3f*on/%d", zoomMax-1, n),
			fmt.Sprintf("(iw-iw/zoom)*on/%d", n),
			"(ih-ih/zoom)/2")
	}},
	{Name: "zoomin", foreground: func(f frame) string {
		return zoompan(f,
			fmt.Sprintf("1+%.3f*on/%d", zoomMax-1, f.frames()),
			"iw/2-(iw/zoom/2)",
			"ih/2-(ih/zoom/2)")
	}},
	{Name: "zoomout", foreground: func(f frame) string {
		return zoompan(f,
			fmt.Sprintf("%.3f-%.3f*on/%d", zoomMax, zoomMax-1, f.frames()),
			"iw/2-(iw/zoom/2)",
			"ih/2-(ih/zoom/2)")
	}},
	{Name: "pan_left", foreground: func(f frame) string {
		return panCrop(f, fmt.Sprintf("(iw-ow)*(1-t/%.3f)", f.Dur), "(ih-oh)/2")
	}},
	{Name: "pan_right", foreground: func(f frame) string {
		return panCrop(f, fmt.Sprintf("(iw-ow)*t/%.3f", f.Dur), "(ih-oh)/2")
	}},
	{Name: "pan_up", foreground: func(f frame) string {
		return panCrop(f, "(iw-ow)/2", fmt.Sprintf("(ih-oh)*(1-t/%.3f)", f.Dur))
	}},
	{Name: "pan_down", foreground: func(f frame) string {
		return panCrop(f, "(iw-ow)/2", fmt.Sprintf("(ih-oh)*t/%.3f", f.Dur))
	}},
	{Name: "rotate", foreground: func(f frame) string {
		// slight overscale hides the corners the rotation uncovers
		return fmt.Sprintf("scale=%d:%d,format=rgba,rotate=a='0.035*sin(2*PI*t/%.3f)':c=none,crop=%d:%d",
			even(float64(f.FW)*1.08), even(float64(f.FH)*1.08), f.Dur, f.FW, f.FH)
	}},
	{Name: "saturation_pulse", foreground: func(f frame) string {
		return fmt.Sprintf("scale=%d:%d,eq=saturation='1+0.5*sin(2*PI*t/%.3f)':eval=frame",
			f.FW, f.FH, f.Dur)
	}},
}

// Lookup finds a catalog effect by name.
func Lookup(name string) (Effect, bool) {
	for _, e := range Catalog {
		if e.Name == name {
			return e, true
		}
	}
	return Effect{}, false
}

func even(v float64) int {
	n := int(v + 0.5)
	if n%2 != 0 {
		n++
	}
	if n < 2 {
		n = 2
	}
	return n
}
