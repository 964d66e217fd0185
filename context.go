package foliogate

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type priorSessionContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it
// for per-IP rate limiting and audit logging.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx for audit logging.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithPriorSessionID attaches the session id the browser presented before
// authentication. Login destroys that session and issues a fresh id, so a
// fixated pre-login id never survives into an authenticated session.
func WithPriorSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, priorSessionContextKey{}, sessionID)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func priorSessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	sessionID, _ := ctx.Value(priorSessionContextKey{}).(string)
	return sessionID
}
