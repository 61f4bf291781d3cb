package billing

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// invoicePrefix derives the <COMPANY4>-<YYYY>-<MM>- prefix from the company
// name: the first four alphanumeric characters uppercased, padded with X
// when the name is too short.
func invoicePrefix(companyName string, issuedAt time.Time) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(companyName) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() == 4 {
				break
			}
		}
	}
	for b.Len() < 4 {
		b.WriteByte('X')
	}
	return fmt.Sprintf("%s-%04d-%02d-", b.String(), issuedAt.Year(), int(issuedAt.Month()))
}

// nextInvoiceNumber appends the next sequence to a prefix given the highest
// number already issued under it. The sequence is monotonic within the
// prefix; gaps from rolled-back transactions are tolerated.
func nextInvoiceNumber(prefix, highest string) string {
	seq := 1
	if raw, ok := strings.CutPrefix(highest, prefix); ok {
		if n, err := strconv.Atoi(raw); err == nil {
			seq = n + 1
		}
	}
	return prefix + fmt.Sprintf("%04d", seq)
}
