// Package colorspace converts sRGB values into the OKLCH space and scores
// perceptual differences between OKLCH coordinates.
package colorspace

import "math"

// OKLCH is a cylindrical OKLab coordinate. L is in [0,1], C is roughly in
// [0,0.4] and H is in degrees within [0,360).
type OKLCH struct {
	L float64 `json:"l"`
	C float64 `json:"c"`
	H float64 `json:"h"`
}

// Weights scales the lightness, chroma and hue terms of a distance.
type Weights struct {
	L float64
	C float64
	H float64
}

// DefaultWeights favours chroma, then lightness, then hue.
var DefaultWeights = Weights{L: 0.2, C: 0.7, H: 0.1}

// ToOKLCH converts an 8-bit sRGB color.
func ToOKLCH(red uint8, green uint8, blue uint8) OKLCH {
	okL, okA, okB := ToOKLab(red, green, blue)
	return fromOKLab(okL, okA, okB)
}

// ToOKLab converts an 8-bit sRGB color into OKLab (L, a, b).
func ToOKLab(red uint8, green uint8, blue uint8) (float64, float64, float64) {
	r := srgb8ToLinear(red)
	g := srgb8ToLinear(green)
	b := srgb8ToLinear(blue)

	l := 0.4122214708*r + 0.5363325363*g + 0.0514459929*b
	m := 0.2119034982*r + 0.6806995451*g + 0.1073969566*b
	s := 0.0883024619*r + 0.2817188376*g + 0.6299787005*b

	lRoot := math.Cbrt(l)
	mRoot := math.Cbrt(m)
	sRoot := math.Cbrt(s)

	okL := 0.2104542553*lRoot + 0.7936177850*mRoot - 0.0040720468*sRoot
	okA := 1.9779984951*lRoot - 2.4285922050*mRoot + 0.4505937099*sRoot
	okB := 0.0259040371*lRoot + 0.7827717662*mRoot - 0.8086757660*sRoot

	return okL, okA, okB
}

func fromOKLab(okL float64, okA float64, okB float64) OKLCH {
	chroma := math.Sqrt(okA*okA + okB*okB)
	hue := math.Atan2(okB, okA) * (180 / math.Pi)

	return OKLCH{L: okL, C: chroma, H: NormalizeHue(hue)}
}

// NormalizeHue wraps a hue angle in degrees into [0,360).
func NormalizeHue(hue float64) float64 {
	wrapped := math.Mod(hue, 360)
	if wrapped < 0 {
		wrapped += 360
	}
	if wrapped >= 360 {
		wrapped -= 360
	}
	return wrapped
}

// ToRGB converts the coordinate back to 8-bit sRGB, clipping out-of-gamut
// channels.
func (c OKLCH) ToRGB() (uint8, uint8, uint8) {
	radians := c.H * (math.Pi / 180)
	okA := c.C * math.Cos(radians)
	okB := c.C * math.Sin(radians)

	return okLabToSRGB8(c.L, okA, okB)
}

// Distance scores two coordinates with DefaultWeights.
func Distance(left OKLCH, right OKLCH) float64 {
	return WeightedDistance(left, right, DefaultWeights)
}

// WeightedDistance is the weighted Euclidean distance over lightness,
// chroma and circular hue difference. The hue term is scaled to [0,1] by
// dividing the shortest angular difference by 180.
func WeightedDistance(left OKLCH, right OKLCH, weights Weights) float64 {
	lDiff := (left.L - right.L) * weights.L
	cDiff := (left.C - right.C) * weights.C

	hDiff := math.Abs(left.H - right.H)
	if hDiff > 180 {
		hDiff = 360 - hDiff
	}
	hDiff = (hDiff / 180) * weights.H

	return math.Sqrt(lDiff*lDiff + cDiff*cDiff + hDiff*hDiff)
}

func okLabToSRGB8(okL float64, okA float64, okB float64) (uint8, uint8, uint8) {
	lPrime := okL + 0.3963377774*okA + 0.2158037573*okB
	mPrime := okL - 0.1055613458*okA - 0.0638541728*okB
	sPrime := okL - 0.0894841775*okA - 1.2914855480*okB

	l := lPrime * lPrime * lPrime
	m := mPrime * mPrime * mPrime
	s := sPrime * sPrime * sPrime

	linearR := 4.0767416621*l - 3.3077115913*m + 0.2309699292*s
	linearG := -1.2684380046*l + 2.6097574011*m - 0.3413193965*s
	linearB := -0.0041960863*l - 0.7034186147*m + 1.7076147010*s

	return linearToSRGB8(linearR), linearToSRGB8(linearG), linearToSRGB8(linearB)
}

func srgb8ToLinear(channel uint8) float64 {
	scaled := float64(channel) / 255
	if scaled <= 0.04045 {
		return scaled / 12.92
	}
	return math.Pow((scaled+0.055)/1.055, 2.4)
}

func linearToSRGB8(channel float64) uint8 {
	if channel <= 0 {
		return 0
	}
	if channel >= 1 {
		return 255
	}

	var encoded float64
	if channel <= 0.0031308 {
		encoded = channel * 12.92
	} else {
		encoded = 1.055*math.Pow(channel, 1.0/2.4) - 0.055
	}

	encoded = math.Min(math.Max(encoded, 0), 1)
	return uint8(math.Round(encoded * 255))
}
