// Package transcript post-processes speech-to-text output before it reaches
// the dialogue. Whisper renders Peruvian Spanish numbers unpredictably:
// sometimes as words ("cuarenta y cinco"), sometimes digit by digit
// ("4 5 6 7 8 9 1 2" for a DNI read aloud). Both forms must come out as the
// digits the slot extractor expects.
package transcript

import (
	"strconv"
	"strings"
)

// units and tens cover the spoken-number vocabulary that matters for
// documents, quantities and prices. Larger compounds (cientos, miles) are out
// of scope: nobody dictates an invoice that way, and a DNI is read digit by
// digit.
var units = map[string]int{
	"cero": 0, "un": 1, "uno": 1, "una": 1, "dos": 2, "tres": 3,
	"cuatro": 4, "cinco": 5, "seis": 6, "siete": 7, "ocho": 8, "nueve": 9,
	"diez": 10, "once": 11, "doce": 12, "trece": 13, "catorce": 14,
	"quince": 15, "dieciseis": 16, "dieciséis": 16, "diecisiete": 17,
	"dieciocho": 18, "diecinueve": 19, "veinte": 20,
	"veintiuno": 21, "veintidos": 22, "veintidós": 22, "veintitres": 23,
	"veintitrés": 23, "veinticuatro": 24, "veinticinco": 25, "veintiseis": 26,
	"veintiséis": 26, "veintisiete": 27, "veintiocho": 28, "veintinueve": 29,
}

var tens = map[string]int{
	"treinta": 30, "cuarenta": 40, "cincuenta": 50, "sesenta": 60,
	"setenta": 70, "ochenta": 80, "noventa": 90,
}

// minDigitRun is the shortest sequence of spoken single digits that gets
// joined into one number. Below it, "2 gaseosas a 5" style quantities must
// stay separate.
const minDigitRun = 4

// NormalizeNumbers rewrites spoken numbers as digits: number words become
// digits ("cuarenta y cinco" → "45"), and long runs of single digits are
// joined into one number ("4 5 6 7 8 9 1 2" → "45678912").
func NormalizeNumbers(text string) string {
	tokens := strings.Fields(text)
	out := make([]string, 0, len(tokens))

	for i := 0; i < len(tokens); {
		word := stripPunct(strings.ToLower(tokens[i]))

		// "cuarenta y cinco" → 45.
		if t, ok := tens[word]; ok {
			if i+2 < len(tokens) && strings.ToLower(tokens[i+1]) == "y" {
				if u, ok := units[stripPunct(strings.ToLower(tokens[i+2]))]; ok && u < 10 {
					out = append(out, strconv.Itoa(t+u))
					i += 3
					continue
				}
			}
			out = append(out, strconv.Itoa(t))
			i++
			continue
		}
		if u, ok := units[word]; ok {
			out = append(out, strconv.Itoa(u))
			i++
			continue
		}
		out = append(out, tokens[i])
		i++
	}

	return joinDigitRuns(out)
}

// joinDigitRuns collapses runs of minDigitRun or more consecutive
// single-digit tokens into one number token.
func joinDigitRuns(tokens []string) string {
	out := make([]string, 0, len(tokens))
	i := 0
	for i < len(tokens) {
		j := i
		for j < len(tokens) && isSingleDigit(tokens[j]) {
			j++
		}
		if j-i >= minDigitRun {
			out = append(out, strings.Join(tokens[i:j], ""))
		} else {
			out = append(out, tokens[i:j]...)
		}
		if j == i {
			out = append(out, tokens[i])
			j = i + 1
		}
		i = j
	}
	return strings.Join(out, " ")
}

func isSingleDigit(s string) bool {
	return len(s) == 1 && s[0] >= '0' && s[0] <= '9'
}

func stripPunct(s string) string {
	return strings.Trim(s, ".,;:!?¿¡")
}
