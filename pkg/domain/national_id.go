package domain

import (
	"strings"

	dErrors "jornada/pkg/domain-errors"
)

// Cpf is a Brazilian individual taxpayer number. Only the 11 cleaned digits
// are stored; Formatted renders the canonical 000.000.000-00 mask.
type Cpf struct {
	value string
}

// Cnpj is a Brazilian company registry number. Only the 14 cleaned digits
// are stored; Formatted renders the canonical 00.000.000/0000-00 mask.
type Cnpj struct {
	value string
}

var (
	cnpjFirstWeights  = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjSecondWeights = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// ParseCpf strips formatting and validates length, digits, repeated-digit
// sequences and both mod-11 check digits.
func ParseCpf(s string) (Cpf, error) {
	if strings.TrimSpace(s) == "" {
		return Cpf{}, dErrors.New(dErrors.CodeValidation, "CPF cannot be empty")
	}
	clean := stripDocumentPunctuation(s)
	if !validCpf(clean) {
		return Cpf{}, dErrors.Newf(dErrors.CodeValidation, "invalid CPF: %s", s)
	}
	return Cpf{value: clean}, nil
}

// MustCpf panics on invalid input. Use only for fixtures.
func MustCpf(s string) Cpf {
	c, err := ParseCpf(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Cpf) Value() string { return c.value }
func (c Cpf) IsZero() bool  { return c.value == "" }

func (c Cpf) Formatted() string {
	if len(c.value) != 11 {
		return c.value
	}
	return c.value[:3] + "." + c.value[3:6] + "." + c.value[6:9] + "-" + c.value[9:]
}

func (c Cpf) String() string { return c.Formatted() }

func (c Cpf) MarshalText() ([]byte, error) { return []byte(c.value), nil }

func (c *Cpf) UnmarshalText(b []byte) error {
	parsed, err := ParseCpf(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCnpj strips formatting and validates length, digits, repeated-digit
// sequences and both weighted mod-11 check digits.
func ParseCnpj(s string) (Cnpj, error) {
	if strings.TrimSpace(s) == "" {
		return Cnpj{}, dErrors.New(dErrors.CodeValidation, "CNPJ cannot be empty")
	}
	clean := stripDocumentPunctuation(s)
	if !validCnpj(clean) {
		return Cnpj{}, dErrors.Newf(dErrors.CodeValidation, "invalid CNPJ: %s", s)
	}
	return Cnpj{value: clean}, nil
}

// MustCnpj panics on invalid input. Use only for fixtures.
func MustCnpj(s string) Cnpj {
	c, err := ParseCnpj(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Cnpj) Value() string { return c.value }
func (c Cnpj) IsZero() bool  { return c.value == "" }

func (c Cnpj) Formatted() string {
	if len(c.value) != 14 {
		return c.value
	}
	return c.value[:2] + "." + c.value[2:5] + "." + c.value[5:8] + "/" + c.value[8:12] + "-" + c.value[12:]
}

func (c Cnpj) String() string { return c.Formatted() }

func (c Cnpj) MarshalText() ([]byte, error) { return []byte(c.value), nil }

func (c *Cnpj) UnmarshalText(b []byte) error {
	parsed, err := ParseCnpj(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func stripDocumentPunctuation(s string) string {
	return strings.NewReplacer(".", "", "-", "", "/", "", " ", "").Replace(strings.TrimSpace(s))
}

func validCpf(cpf string) bool {
	digits, ok := toDigits(cpf, 11)
	if !ok || allSame(digits) {
		return false
	}
	sum := 0
	for i := 0; i < 9; i++ {
		sum += digits[i] * (10 - i)
	}
	if digits[9] != checkDigit(sum) {
		return false
	}
	sum = 0
	for i := 0; i < 10; i++ {
		sum += digits[i] * (11 - i)
	}
	return digits[10] == checkDigit(sum)
}

func validCnpj(cnpj string) bool {
	digits, ok := toDigits(cnpj, 14)
	if !ok || allSame(digits) {
		return false
	}
	sum := 0
	for i, w := range cnpjFirstWeights {
		sum += digits[i] * w
	}
	if digits[12] != checkDigit(sum) {
		return false
	}
	sum = 0
	for i, w := range cnpjSecondWeights {
		sum += digits[i] * w
	}
	return digits[13] == checkDigit(sum)
}

func checkDigit(sum int) int {
	r := sum % 11
	if r < 2 {
		return 0
	}
	return 11 - r
}

func toDigits(s string, length int) ([]int, bool) {
	if len(s) != length {
		return nil, false
	}
	digits := make([]int, length)
	for i := 0; i < length; i++ {
		if s[i] < '0' || s[i] > '9' {
			return nil, false
		}
		digits[i] = int(s[i] - '0')
	}
	return digits, true
}

func allSame(digits []int) bool {
	for _, d := range digits[1:] {
		if d != digits[0] {
			return false
		}
	}
	return true
}
