//go:build gofuzz
// +build gofuzz

package lexer

import (
	"fmt"
)

func Fuzz(data []byte) int {
	l := Lexer{}
	samples, err := l.Run(data)
	if err != nil {
		if samples != nil {
			panic(fmt.Errorf("samples returned with error %v: %+v", err, samples))
		}
		return 0
	}
	for _, s := range samples {
		if s.Key == "" {
			panic(fmt.Errorf("empty key: %+v", s))
		}
	}
	return 1
}
