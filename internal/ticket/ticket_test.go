package ticket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleTicket() *Ticket {
	return &Ticket{
		Version: 1,
		Userdata: Userdata{
			Serial:     []byte{0xAA, 0xBB},
			IssuerID:   7,
			IssuedDate: time.UnixMilli(1_700_000_000_000).UTC(),
			ExpireDate: time.UnixMilli(1_800_000_000_000).UTC(),
			UserID:     123456789,
			OnlineID:   "player_one",
			Region:     []byte{0x01},
			Domain:     "prod",
			ServiceID:  []byte{0x02, 0x03},
			Status:     1,
			Cookie:     append(make([]byte, 16), []byte("extra")...),
		},
		Signature: Signature{
			Signer:    []byte{0x01},
			Signature: []byte{0x02, 0x03, 0x04},
		},
	}
}

func TestTicket_RoundTrip(t *testing.T) {
	orig := sampleTicket()
	encoded := orig.Encode()

	parsed, err := Parse(encoded)
	require.NoError(t, err)

	require.Equal(t, orig.Version, parsed.Version)
	require.Equal(t, orig.Userdata.Serial, parsed.Userdata.Serial)
	require.Equal(t, orig.Userdata.IssuerID, parsed.Userdata.IssuerID)
	require.True(t, orig.Userdata.IssuedDate.Equal(parsed.Userdata.IssuedDate))
	require.True(t, orig.Userdata.ExpireDate.Equal(parsed.Userdata.ExpireDate))
	require.Equal(t, orig.Userdata.UserID, parsed.Userdata.UserID)
	require.Equal(t, orig.Userdata.OnlineID, parsed.Userdata.OnlineID)
	require.Equal(t, orig.Userdata.Region, parsed.Userdata.Region)
	require.Equal(t, orig.Userdata.Domain, parsed.Userdata.Domain)
	require.Equal(t, orig.Userdata.ServiceID, parsed.Userdata.ServiceID)
	require.Equal(t, orig.Userdata.Status, parsed.Userdata.Status)
	require.Equal(t, orig.Userdata.Cookie, parsed.Userdata.Cookie)
	require.Equal(t, orig.Signature.Signer, parsed.Signature.Signer)
	require.Equal(t, orig.Signature.Signature, parsed.Signature.Signature)
}

func TestTicket_CookieOptional(t *testing.T) {
	tk := sampleTicket()
	tk.Userdata.Cookie = nil

	parsed, err := Parse(tk.Encode())
	require.NoError(t, err)
	require.Nil(t, parsed.Userdata.Cookie)
}

func TestTicket_IsExpired(t *testing.T) {
	tk := sampleTicket()
	require.True(t, tk.IsExpired(tk.Userdata.ExpireDate))
	require.True(t, tk.IsExpired(tk.Userdata.ExpireDate.Add(time.Second)))
	require.False(t, tk.IsExpired(tk.Userdata.ExpireDate.Add(-time.Second)))
}

func TestTicket_IsSigned(t *testing.T) {
	signed := sampleTicket()
	require.True(t, signed.IsSigned())

	unsigned := sampleTicket()
	unsigned.Signature.Signer = []byte{0x00, 0x00}
	unsigned.Signature.Signature = []byte{0x00}
	require.False(t, unsigned.IsSigned())
}

func TestTicket_CommitmentKey(t *testing.T) {
	tk := sampleTicket()
	key, err := tk.CommitmentKey()
	require.NoError(t, err)
	require.Len(t, key, 16)

	tk.Userdata.Cookie = []byte{1, 2, 3}
	_, err = tk.CommitmentKey()
	require.Error(t, err)
}
