package fastboot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnmarshalResponse(t *testing.T) {
	cases := []struct {
		name string
		data string
		want Response
	}{
		{"okay with text", "OKAY1.0", Response{Kind: ReplyOkay, Text: "1.0"}},
		{"okay empty", "OKAY", Response{Kind: ReplyOkay}},
		{"fail", "FAILunknown command", Response{Kind: ReplyFail, Text: "unknown command"}},
		{"info", "INFOerasing...", Response{Kind: ReplyInfo, Text: "erasing..."}},
		{"data", "DATA00001000", Response{Kind: ReplyData, Size: 0x1000}},
		{"data uppercase", "DATA0001ABCD", Response{Kind: ReplyData, Size: 0x1abcd}},
		{"data zero", "DATA00000000", Response{Kind: ReplyData, Size: 0}},
		{"data max", "DATAffffffff", Response{Kind: ReplyData, Size: 0xffffffff}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			resp, err := UnmarshalResponse([]byte(c.data))
			require.NoError(t, err)
			require.Equal(t, c.want, *resp)
		})
	}
}

func TestUnmarshalResponseRejects(t *testing.T) {
	cases := []struct {
		name string
		data string
		want error
	}{
		{"empty", "", ErrResponseSize},
		{"short", "OKA", ErrResponseSize},
		{"unknown prefix", "WARNsomething", ErrInvalidReply},
		{"lowercase prefix", "okay", ErrInvalidReply},
		{"data no length", "DATA", ErrInvalidDataLength},
		{"data short length", "DATA1000", ErrInvalidDataLength},
		{"data long length", "DATA000010000", ErrInvalidDataLength},
		{"data bad digits", "DATA0000zz00", ErrInvalidDataLength},
		{"data 0x prefix", "DATA0x001000", ErrInvalidDataLength},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := UnmarshalResponse([]byte(c.data))
			require.ErrorIs(t, err, c.want)
		})
	}
}

func TestResponseMarshal(t *testing.T) {
	cases := []struct {
		name string
		resp Response
		want string
	}{
		{"okay", Response{Kind: ReplyOkay, Text: "1.0"}, "OKAY1.0"},
		{"fail", Response{Kind: ReplyFail, Text: "too many args"}, "FAILtoo many args"},
		{"info", Response{Kind: ReplyInfo, Text: "50%"}, "INFO50%"},
		{"data", Response{Kind: ReplyData, Size: 0xcafe}, "DATA0000cafe"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			data, err := c.resp.Marshal()
			require.NoError(t, err)
			require.Equal(t, c.want, string(data))

			back, err := UnmarshalResponse(data)
			require.NoError(t, err)
			require.Equal(t, c.resp, *back)
		})
	}

	t.Run("text too long", func(t *testing.T) {
		resp := Response{Kind: ReplyInfo, Text: strings.Repeat("x", MaxResponseSize-replyPrefixSize+1)}
		_, err := resp.Marshal()
		require.ErrorIs(t, err, ErrResponseSize)
	})

	t.Run("unknown kind", func(t *testing.T) {
		resp := Response{Kind: ReplyKind(9)}
		_, err := resp.Marshal()
		require.ErrorIs(t, err, ErrInvalidReply)
	})
}

func TestReplyKindString(t *testing.T) {
	require.Equal(t, "OKAY", ReplyOkay.String())
	require.Equal(t, "FAIL", ReplyFail.String())
	require.Equal(t, "DATA", ReplyData.String())
	require.Equal(t, "INFO", ReplyInfo.String())
	require.Equal(t, "UNKNOWN", ReplyKind(0).String())
}
