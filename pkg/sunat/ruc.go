package sunat

import (
	"fmt"
	"strings"
)

// NormalizeRUC deja solo los dígitos del RUC.
func NormalizeRUC(ruc string) string {
	var b strings.Builder
	for _, r := range ruc {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateRUC verifica longitud y dígito verificador (módulo 11) del RUC.
func ValidateRUC(ruc string) error {
	digits := NormalizeRUC(ruc)
	if len(digits) != 11 {
		return fmt.Errorf("sunat: RUC %q debe tener 11 dígitos", ruc)
	}
	// Factores del algoritmo módulo 11 para los 10 primeros dígitos
	factors := []int{5, 4, 3, 2, 7, 6, 5, 4, 3, 2}
	sum := 0
	for i, f := range factors {
		sum += int(digits[i]-'0') * f
	}
	check := 11 - (sum % 11)
	if check >= 10 {
		check -= 10
	}
	if check != int(digits[10]-'0') {
		return fmt.Errorf("sunat: RUC %q con dígito verificador inválido", ruc)
	}
	return nil
}

// FormatSeriesNumber compone la identidad legible del comprobante: F001-00000123.
// El correlativo se rellena a 8 dígitos como lo espera SUNAT.
func FormatSeriesNumber(series string, number int64) string {
	return fmt.Sprintf("%s-%08d", strings.ToUpper(strings.TrimSpace(series)), number)
}
