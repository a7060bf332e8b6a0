package douyin

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bluele/gcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dylive-go/dylive-go/src/configs"
)

func TestSignatureDigest(t *testing.T) {
	wssURL := BuildWSURL("7383", "7777777777777777777", "0", "")
	digest, err := SignatureDigest(wssURL)
	require.NoError(t, err)

	pairs := []string{
		"live_id=1",
		"aid=6383",
		"version_code=180800",
		"webcast_sdk_version=1.0.14-beta.0",
		"room_id=7383",
		"sub_room_id=",
		"sub_channel_id=",
		"did_rule=3",
		"user_unique_id=7777777777777777777",
		"device_platform=web",
		"device_type=",
		"ac=",
		"identity=audience",
	}
	sum := md5.Sum([]byte(strings.Join(pairs, ",")))
	assert.Equal(t, hex.EncodeToString(sum[:]), digest)
}

func TestJSSigner(t *testing.T) {
	script := filepath.Join(t.TempDir(), "sign.js")
	require.NoError(t, os.WriteFile(script, []byte(
		`function get_sign(x) { return "sig-" + x.substring(0, 4); }`,
	), 0644))

	signer, err := NewJSSigner(script)
	require.NoError(t, err)

	wssURL := BuildWSURL("7383", "7777777777777777777", "0", "")
	signature, err := signer.Sign(wssURL)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(signature, "sig-"))
	assert.Len(t, signature, 8)
}

func TestJSSignerMissingFunction(t *testing.T) {
	script := filepath.Join(t.TempDir(), "sign.js")
	require.NoError(t, os.WriteFile(script, []byte(`var nothing = 1;`), 0644))

	_, err := NewJSSigner(script)
	var sigErr *SignatureError
	require.ErrorAs(t, err, &sigErr)
}

func TestGenerateMsToken(t *testing.T) {
	token := GenerateMsToken(0)
	assert.Len(t, token, 182)
	for _, c := range token {
		assert.Contains(t, msTokenChars, string(c))
	}
	// 两次生成不应相同
	assert.NotEqual(t, token, GenerateMsToken(0))
}

func TestGenerateUserUniqueID(t *testing.T) {
	id := GenerateUserUniqueID()
	assert.Len(t, id, 19)
	assert.NotEqual(t, byte('0'), id[0])
	for _, c := range id {
		assert.True(t, c >= '0' && c <= '9')
	}
}

func TestExtractRoomID(t *testing.T) {
	body := `{\"state\":{\"roomStore\":{\"roomInfo\":{\"roomId\":\"7418394362793331496\",\"anchor\":{}}}}}`
	roomID, err := ExtractRoomID(body)
	require.NoError(t, err)
	assert.Equal(t, "7418394362793331496", roomID)

	_, err = ExtractRoomID("<html>no room here</html>")
	assert.ErrorIs(t, err, ErrRoomIDNotFound)
}

func TestResolverUsesInjectedCache(t *testing.T) {
	cache := gcache.New(16).LRU().Build()
	// 进程级缓存里已有的 room_id 直接复用，不发起网络请求
	require.NoError(t, cache.Set(roomIDPrefix+"168465302284", "7418394362793331496"))

	r := NewResolver(configs.NewConfig(), cache)
	roomID, err := r.ResolveRoomID("168465302284")
	require.NoError(t, err)
	assert.Equal(t, "7418394362793331496", roomID)
}

func TestResolverManualTTWid(t *testing.T) {
	cfg := configs.NewConfig()
	cfg.Douyin.TTWid = "1%7CfPx"

	r := NewResolver(cfg, nil)
	ttwid, err := r.TTWid()
	require.NoError(t, err)
	assert.Equal(t, "1%7CfPx", ttwid)
}

func TestSignedWSURL(t *testing.T) {
	script := filepath.Join(t.TempDir(), "sign.js")
	require.NoError(t, os.WriteFile(script, []byte(
		`function get_sign(x) { return "fixed_signature"; }`,
	), 0644))
	signer, err := NewJSSigner(script)
	require.NoError(t, err)

	signed, err := SignedWSURL(signer, "7383", "7777777777777777777", "0", "")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(signed, "&signature=fixed_signature"))
	assert.Contains(t, signed, "room_id=7383")
	assert.Contains(t, signed, "compress=gzip")
}
