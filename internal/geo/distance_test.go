package geo

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	type testCase struct {
		description string
		a, b        orb.Point
		expect      float64
		delta       float64
	}
	tests := []testCase{
		{description: "identical points", a: orb.Point{8.5, 47.3}, b: orb.Point{8.5, 47.3}, expect: 0, delta: 0},
		{description: "quarter meridian on equator", a: orb.Point{0, 0}, b: orb.Point{90, 0}, expect: math.Pi / 2 * EarthRadiusM, delta: 1},
		{description: "one degree of longitude on equator", a: orb.Point{0, 0}, b: orb.Point{1, 0}, expect: 111194.9, delta: 1},
		{description: "pole to pole", a: orb.Point{0, 90}, b: orb.Point{0, -90}, expect: math.Pi * EarthRadiusM, delta: 1},
		{description: "across the date line", a: orb.Point{179.9995, 0}, b: orb.Point{-179.9995, 0}, expect: 111.19, delta: 0.1},
	}
	for _, tc := range tests {
		assert.InDelta(t, tc.expect, Distance(tc.a, tc.b), tc.delta, tc.description)
	}
}

func TestDistance_Symmetric(t *testing.T) {
	pts := []orb.Point{
		{0, 0}, {13.4, 52.5}, {-74.0, 40.7}, {151.2, -33.9}, {179.9, 89.9}, {-179.9, -89.9},
	}
	for _, p := range pts {
		assert.Equal(t, 0.0, Distance(p, p))
		for _, q := range pts {
			d1 := Distance(p, q)
			d2 := Distance(q, p)
			assert.InEpsilon(t, d1+1, d2+1, 1e-6)
		}
	}
}

func TestDistanceOn(t *testing.T) {
	a := orb.Point{0, 0}
	b := orb.Point{90, 0}
	assert.InDelta(t, math.Pi/2*6378137.0, DistanceOn(6378137.0, a, b), 1)
}
