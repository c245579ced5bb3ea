// Package suffix encodes numeric identifiers as short, typo resistant DOI
// suffixes: Crockford style base-32 symbols, a two digit ISO 7064 MOD 97-10
// checksum and a hyphen splitting the result in two groups ("0000-3v20").
package suffix

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Alphabet lists the 32 symbols in digit order. i, l, o and u are excluded.
const Alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

const (
	base           = uint64(len(Alphabet))
	dataWidth      = 6
	checksumWidth  = 2
	minEncodedSize = dataWidth + checksumWidth
	separator      = '-'
	modulus        = 97
)

// randomCeiling keeps random suffixes within dataWidth symbols.
var randomCeiling = new(big.Int).Exp(big.NewInt(int64(base)), big.NewInt(dataWidth), nil)

// Encode returns a suffix for a freshly drawn random number.
func Encode() (string, error) {
	value, err := rand.Int(rand.Reader, randomCeiling)
	if err != nil {
		return "", fmt.Errorf("suffix: draw random number: %w", err)
	}
	return EncodeNumber(value.Uint64()), nil
}

// EncodeNumber deterministically encodes number, e.g. 123 becomes "0000-3v20".
func EncodeNumber(number uint64) string {
	digits := toBase32(number)
	if pad := dataWidth - len(digits); pad > 0 {
		digits = strings.Repeat(string(Alphabet[0]), pad) + digits
	}
	compact := digits + fmt.Sprintf("%02d", checksum(number))
	middle := len(compact) / 2
	return compact[:middle] + string(separator) + compact[middle:]
}

// EncodeString encodes a decimal number given as text.
func EncodeString(raw string) (string, error) {
	number, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return "", fmt.Errorf("suffix: %q is not a non-negative integer: %w", raw, err)
	}
	return EncodeNumber(number), nil
}

// Decode returns the number carried by suffix. The boolean is false for
// malformed input and for checksum mismatches. Matching is case-insensitive.
func Decode(suffix string) (uint64, bool) {
	normalized := strings.ToLower(strings.TrimSpace(suffix))
	if strings.Count(normalized, string(separator)) != 1 {
		return 0, false
	}
	separatorIndex := strings.IndexByte(normalized, separator)
	compact := normalized[:separatorIndex] + normalized[separatorIndex+1:]
	if len(compact) < minEncodedSize || separatorIndex != len(compact)/2 {
		return 0, false
	}

	dataPart := compact[:len(compact)-checksumWidth]
	checksumPart := compact[len(compact)-checksumWidth:]
	if checksumPart[0] < '0' || checksumPart[0] > '9' || checksumPart[1] < '0' || checksumPart[1] > '9' {
		return 0, false
	}
	expected := uint64(checksumPart[0]-'0')*10 + uint64(checksumPart[1]-'0')

	number, ok := fromBase32(dataPart)
	if !ok {
		return 0, false
	}
	if checksum(number) != expected {
		return 0, false
	}
	// Extra leading zero symbols would still checksum; only the canonical form is accepted.
	if EncodeNumber(number) != normalized {
		return 0, false
	}
	return number, true
}

// checksum computes 98 - (number*100 mod 97) without overflowing.
func checksum(number uint64) uint64 {
	return 98 - ((number%modulus)*100)%modulus
}

func toBase32(number uint64) string {
	if number == 0 {
		return string(Alphabet[0])
	}
	var buffer [16]byte
	position := len(buffer)
	for number > 0 {
		position--
		buffer[position] = Alphabet[number%base]
		number /= base
	}
	return string(buffer[position:])
}

func fromBase32(symbols string) (uint64, bool) {
	var number uint64
	for index := 0; index < len(symbols); index++ {
		digit := strings.IndexByte(Alphabet, symbols[index])
		if digit < 0 {
			return 0, false
		}
		if number > (math.MaxUint64-uint64(digit))/base {
			return 0, false
		}
		number = number*base + uint64(digit)
	}
	return number, true
}
