package admin

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	apperrors "github.com/ItsCrafted/blooket-hacks/internal/errors"
)

func dialAdmin(t *testing.T, ctrl *Controller) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(UnaryAuthInterceptor(NewVerifier(testSecret, fixedNow))))
	Register(srv, ctrl)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func authed(t *testing.T) context.Context {
	t.Helper()
	tok, err := Mint(testSecret, "ops", time.Hour, fixedNow())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+tok)
}

func TestGRPCRequiresToken(t *testing.T) {
	ctrl, _ := newTestController(t)
	conn := dialAdmin(t, ctrl)

	out := new(structpb.ListValue)
	err := conn.Invoke(context.Background(), FullMethod(MethodListBans), &emptypb.Empty{}, out)
	require.Error(t, err)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.True(t, apperrors.IsCode(apperrors.FromGRPCError(err), apperrors.CodeUnauthenticated))
}

func TestGRPCBanFlow(t *testing.T) {
	ctrl, _ := newTestController(t)
	conn := dialAdmin(t, ctrl)
	ctx := authed(t)

	changed := new(wrapperspb.BoolValue)
	require.NoError(t, conn.Invoke(ctx, FullMethod(MethodBan), wrapperspb.String("7"), changed))
	assert.True(t, changed.GetValue())

	list := new(structpb.ListValue)
	require.NoError(t, conn.Invoke(ctx, FullMethod(MethodListBans), &emptypb.Empty{}, list))
	assert.Equal(t, []any{"0000000000000007"}, list.AsSlice())

	entries := ctrl.Audit(1)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Detail, "ops", "subject flows from the token")

	err := conn.Invoke(ctx, FullMethod(MethodBan), wrapperspb.String("nope"), changed)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPCWordsStatsAndReputation(t *testing.T) {
	ctrl, rep := newTestController(t)
	conn := dialAdmin(t, ctrl)
	ctx := authed(t)

	changed := new(wrapperspb.BoolValue)
	require.NoError(t, conn.Invoke(ctx, FullMethod(MethodAddWord), wrapperspb.String("Foo"), changed))
	require.NoError(t, conn.Invoke(ctx, FullMethod(MethodAddWord), wrapperspb.String("bar"), changed))
	require.NoError(t, conn.Invoke(ctx, FullMethod(MethodRemoveWord), wrapperspb.String("bar"), changed))
	assert.True(t, changed.GetValue())

	words := new(structpb.ListValue)
	require.NoError(t, conn.Invoke(ctx, FullMethod(MethodListWords), &emptypb.Empty{}, words))
	assert.Equal(t, []any{"foo"}, words.AsSlice())

	require.NoError(t, conn.Invoke(ctx, FullMethod(MethodSetReputationCheck), wrapperspb.Bool(false), new(emptypb.Empty)))
	assert.False(t, rep.Enabled())

	st := new(structpb.Struct)
	require.NoError(t, conn.Invoke(ctx, FullMethod(MethodStats), &emptypb.Empty{}, st))
	m := st.AsMap()
	assert.Equal(t, float64(1), m["words"])
	assert.Equal(t, float64(3), m["online"])
}
