// Package tool describes the drill: its pose, velocity and cutting-tip
// geometry. Geometries are pluggable; the burr is an analytic sphere and
// the cylindrical and capsule tips are signed distance fields built with
// sdfx.
package tool
