package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netmon/internal/models"
)

var (
	tlsRec = models.PacketRecord{
		Seq: 1, SrcIP: "10.0.0.1", DstIP: "93.184.216.34",
		SrcPort: 49152, DstPort: 443,
		Protocol: models.ProtoTCP, Length: 1500,
	}
	dnsRec = models.PacketRecord{
		Seq: 2, SrcIP: "10.0.0.1", DstIP: "10.0.0.53",
		SrcPort: 5353, DstPort: 53,
		Protocol: models.ProtoUDP, Length: 72,
	}
	httpRec = models.PacketRecord{
		Seq: 3, SrcIP: "10.0.0.2", DstIP: "10.0.0.1",
		SrcPort: 49153, DstPort: 80,
		Protocol: models.ProtoTCP, Length: 420,
		Text: "GET /index.html HTTP/1.1", PlainText: true,
	}
)

func TestCompileAndMatch(t *testing.T) {
	cases := []struct {
		expr string
		want []uint64
	}{
		{`protocol == "TCP"`, []uint64{1, 3}},
		{`is_udp`, []uint64{2}},
		{`dst_port == 443`, []uint64{1}},
		{`src == "10.0.0.1" && length < 100`, []uint64{2}},
		{`plain_text && text contains "GET"`, []uint64{3}},
		{`is_tcp || is_udp`, []uint64{1, 2, 3}},
		{`length > 2000`, nil},
		{`dst startsWith "10.0."`, []uint64{2, 3}},
	}
	recs := []models.PacketRecord{tlsRec, dnsRec, httpRec}

	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			match, err := Compile(tc.expr)
			require.NoError(t, err)

			var got []uint64
			for i := range recs {
				if match(&recs[i]) {
					got = append(got, recs[i].Seq)
				}
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCompileRejectsInvalidExpressions(t *testing.T) {
	for _, src := range []string{
		`dst_port ==`,            // syntax error
		`no_such_field == 1`,     // unknown identifier
		`length + 1`,             // not a boolean
		`protocol == "TCP" && (`, // unbalanced
	} {
		t.Run(src, func(t *testing.T) {
			_, err := Compile(src)
			assert.Error(t, err)
		})
	}
}
