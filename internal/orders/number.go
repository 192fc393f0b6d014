package orders

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const numberAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewOrderNumber renders ORD-<unix ms>-<5 base36 chars>.
func NewOrderNumber(now time.Time) string {
	var b strings.Builder
	b.WriteString("ORD-")
	b.WriteString(strconv.FormatInt(now.UnixMilli(), 10))
	b.WriteByte('-')
	max := big.NewInt(int64(len(numberAlphabet)))
	for i := 0; i < 5; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(err)
		}
		b.WriteByte(numberAlphabet[n.Int64()])
	}
	return b.String()
}
