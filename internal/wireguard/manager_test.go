package wireguard

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerctl/internal/execx"
)

type recordRunner struct {
	cmds   []string
	inputs []string
	fail   map[string]error
	out    string
}

func (r *recordRunner) record(name string, args ...string) error {
	cmd := name + " " + strings.Join(args, " ")
	r.cmds = append(r.cmds, cmd)
	return r.fail[cmd]
}

func (r *recordRunner) Run(_ context.Context, name string, args ...string) error {
	return r.record(name, args...)
}

func (r *recordRunner) RunInput(_ context.Context, input string, name string, args ...string) error {
	r.inputs = append(r.inputs, input)
	return r.record(name, args...)
}

func (r *recordRunner) Output(_ context.Context, name string, args ...string) (string, error) {
	return r.out, r.record(name, args...)
}

var _ execx.Runner = (*recordRunner)(nil)

func TestManagerApply_SyncconfFromStdin(t *testing.T) {
	t.Parallel()

	rr := &recordRunner{}
	m := NewManager(rr, "wg0", "")

	conf := "[Interface]\nPrivateKey = x\nAddress = 10.0.0.1/24\n\n# Client: a\n[Peer]\nPublicKey = p\nAllowedIPs = 10.0.0.2/32\n"
	require.NoError(t, m.Apply(context.Background(), conf))

	assert.Equal(t, []string{"wg syncconf wg0 /dev/stdin"}, rr.cmds)
	require.Len(t, rr.inputs, 1)
	assert.NotContains(t, rr.inputs[0], "Address")
	assert.Contains(t, rr.inputs[0], "PublicKey = p")
}

func TestManagerApply_RequiresInterface(t *testing.T) {
	t.Parallel()

	rr := &recordRunner{}
	assert.Error(t, NewManager(rr, "", "").Apply(context.Background(), ""))
	assert.Empty(t, rr.cmds)
}

func TestManagerRestart_WgQuick(t *testing.T) {
	t.Parallel()

	rr := &recordRunner{fail: map[string]error{
		"wg-quick down wg0": errors.New("wg-quick: `wg0' is not a WireGuard interface"),
	}}
	m := NewManager(rr, "wg0", RestartWgQuick)

	require.NoError(t, m.Restart(context.Background(), ""))
	assert.Equal(t, []string{"wg-quick down wg0", "wg-quick up wg0"}, rr.cmds)
}

func TestManagerRestart_UpFailure(t *testing.T) {
	t.Parallel()

	rr := &recordRunner{fail: map[string]error{
		"wg-quick up wg0": errors.New("RTNETLINK answers: Operation not permitted"),
	}}
	err := NewManager(rr, "wg0", "").Restart(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Operation not permitted")
}

func TestManagerRestart_Systemd(t *testing.T) {
	t.Parallel()

	rr := &recordRunner{}
	require.NoError(t, NewManager(rr, "wg0", RestartSystemd).Restart(context.Background(), ""))
	assert.Equal(t, []string{"systemctl restart wg-quick@wg0"}, rr.cmds)
}

func TestManagerRestart_PushesConfAfterUp(t *testing.T) {
	t.Parallel()

	conf := "[Interface]\nPrivateKey = x\nAddress = 10.0.0.1/24\nPostUp = true\n\n# Client: beta\n[Peer]\nPublicKey = pb\nAllowedIPs = 10.0.0.3/32\n"

	for _, mode := range []string{RestartWgQuick, RestartSystemd} {
		rr := &recordRunner{}
		require.NoError(t, NewManager(rr, "wg0", mode).Restart(context.Background(), conf), mode)

		require.NotEmpty(t, rr.cmds, mode)
		assert.Equal(t, "wg syncconf wg0 /dev/stdin", rr.cmds[len(rr.cmds)-1], mode)
		require.Len(t, rr.inputs, 1, mode)
		assert.Equal(t, StripQuick(conf), rr.inputs[0], mode)
		assert.Contains(t, rr.inputs[0], "PublicKey = pb", mode)
	}
}

func TestManagerRestart_SyncconfFailure(t *testing.T) {
	t.Parallel()

	rr := &recordRunner{fail: map[string]error{
		"wg syncconf wg0 /dev/stdin": errors.New("Line unrecognized"),
	}}
	err := NewManager(rr, "wg0", "").Restart(context.Background(), "[Interface]\nPrivateKey = x\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "syncconf after restart")
	assert.Equal(t, []string{"wg-quick down wg0", "wg-quick up wg0", "wg syncconf wg0 /dev/stdin"}, rr.cmds)
}

func TestManagerLivePeers(t *testing.T) {
	t.Parallel()

	rr := &recordRunner{out: "wg0\tpriv\tpub\t51820\toff\npeerA\t(none)\t(none)\t10.0.0.2/32\t0\t0\t0\toff"}
	peers, err := NewManager(rr, "wg0", "").LivePeers(context.Background())
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, "peerA", peers[0].PublicKey)
	assert.Equal(t, []string{"wg show wg0 dump"}, rr.cmds)
}
