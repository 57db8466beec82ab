package registry

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/clashsub/internal/model"
)

func node(name, server string, port int) model.Node {
	return model.Node{
		Protocol:   model.ProtocolTrojan,
		Name:       name,
		Server:     server,
		Port:       port,
		Credential: "pw",
	}
}

func TestAdd_NameCollisions(t *testing.T) {
	r := New(Options{Reserved: []string{"Auto"}})

	var names []string
	for _, n := range []model.Node{
		node("HK", "a.com", 1),
		node("HK", "b.com", 1),
		node("HK", "c.com", 1),
		node("DIRECT", "d.com", 1),
		node("Auto", "e.com", 1),
		node("", "f.com", 443),
		node("", "2001:db8::1", 443),
		node(" tab\tname\x00 ", "g.com", 1),
	} {
		got, err := r.Add(n)
		require.NoError(t, err)
		names = append(names, got.Name)
	}
	require.Equal(t, []string{
		"HK", "HK-2", "HK-3", "DIRECT-2", "Auto-2", "f.com:443", "[2001:db8::1]:443", "tab name",
	}, names)
	require.Equal(t, names, r.Names())
}

func TestAdd_DuplicateNamesKeptDistinct(t *testing.T) {
	r := New(Options{})
	a, err := r.Add(node("X", "a.com", 1))
	require.NoError(t, err)
	b, err := r.Add(node("X", "a.com", 1))
	require.NoError(t, err)
	require.Equal(t, "X", a.Name)
	require.Equal(t, "X-2", b.Name)
}

func TestAdd_DropDuplicates(t *testing.T) {
	r := New(Options{DropDuplicates: true})
	_, err := r.Add(node("X", "a.com", 1))
	require.NoError(t, err)
	_, err = r.Add(node("Y", "A.com", 1))
	require.True(t, errors.Is(err, ErrDuplicate))

	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, "NODE_DUPLICATE", rerr.AppError.Code)
	require.Equal(t, 1, r.Len())
}

func TestAdd_InvalidAndFrozen(t *testing.T) {
	r := New(Options{})
	_, err := r.Add(node("bad", "", 1))
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, "NODE_INVALID", rerr.AppError.Code)

	r.Freeze()
	require.True(t, r.Frozen())
	_, err = r.Add(node("ok", "a.com", 1))
	require.True(t, errors.Is(err, ErrFrozen))
	require.Zero(t, r.Len())
}

func TestNodes_IsCopy(t *testing.T) {
	r := New(Options{})
	in := node("A", "a.com", 1)
	in.Params = map[string]string{model.ParamSNI: "x"}
	_, err := r.Add(in)
	require.NoError(t, err)

	in.Params[model.ParamSNI] = "mutated"
	nodes := r.Nodes()
	require.Equal(t, "x", nodes[0].Params[model.ParamSNI])
	nodes[0].Name = "changed"
	require.Equal(t, "A", r.Nodes()[0].Name)
}

func TestMarshalJSON(t *testing.T) {
	r := New(Options{})
	_, err := r.Add(node("香港 <01>", "a.com", 443))
	require.NoError(t, err)

	b, err := r.MarshalJSON()
	require.NoError(t, err)
	require.Contains(t, string(b), "香港 <01>")

	var out []map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	require.Len(t, out, 1)
	require.Equal(t, "trojan", out[0]["protocol"])
	require.Equal(t, float64(443), out[0]["port"])
	require.Equal(t, map[string]any{}, out[0]["protocol_params"])

	empty, err := New(Options{}).MarshalJSON()
	require.NoError(t, err)
	require.JSONEq(t, "[]", string(empty))
}
