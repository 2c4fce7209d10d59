// Copyright 2016 IBM Corporation
//
//   Licensed under the Apache License, Version 2.0 (the "License");
//   you may not use this file except in compliance with the License.
//   You may obtain a copy of the License at
//
//       http://www.apache.org/licenses/LICENSE-2.0
//
//   Unless required by applicable law or agreed to in writing, software
//   distributed under the License is distributed on an "AS IS" BASIS,
//   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//   See the License for the specific language governing permissions and
//   limitations under the License.

// Package math provides basic integer arithmetic helpers missing from the standard library.
package math

// Min returns the smaller of the two given integers.
func Min(x, y int) int {
	if x < y {
		return x
	}
	return y
}

// Max returns the larger of the two given integers.
func Max(x, y int) int {
	if x > y {
		return x
	}
	return y
}

// Clamp limits the given value to the inclusive [lower, upper] range.
func Clamp(value, lower, upper int) int {
	return Max(lower, Min(value, upper))
}
