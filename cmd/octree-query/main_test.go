package main

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestParseVector(t *testing.T) {
	v, err := parseVector("1, -2.5,3e2")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, v, test.ShouldResemble, r3.Vector{X: 1, Y: -2.5, Z: 300})
	test.That(t, formatVector(v), test.ShouldEqual, "1,-2.5,300")

	_, err = parseVector("1,2")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "expected x,y,z")

	_, err = parseVector("1,2,z")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `invalid component "z"`)
}
