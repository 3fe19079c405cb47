package keys

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	clierr "github.com/ggonzalez94/wallet-cli/internal/errors"
	"github.com/ggonzalez94/wallet-cli/internal/httpx"
	"github.com/ggonzalez94/wallet-cli/internal/network"
)

// DeviceTimeout bounds a single sign call so a user confirming on the device
// is not cut off by the shorter node timeout.
const DeviceTimeout = 2 * time.Minute

// RemoteSigner forwards signing to an external signer daemon, typically one
// that fronts a hardware device. The daemon owns the key.
//
// Each Sign call reaches the daemon at most once, whatever retry policy the
// supplied client carries.
type RemoteSigner struct {
	url    string
	client *httpx.Client
}

func NewRemoteSigner(url string, client *httpx.Client) *RemoteSigner {
	if client == nil {
		client = httpx.New(DeviceTimeout, 0)
	}
	return &RemoteSigner{
		url:    strings.TrimRight(strings.TrimSpace(url), "/"),
		client: client.WithPolicy(httpx.NoRetry()),
	}
}

type remoteSignRequest struct {
	PublicKey string           `json:"public_key"`
	Payload   SignPayload      `json:"payload"`
	ABI       json.RawMessage  `json:"abi,omitempty"`
	Network   network.Identity `json:"network"`
}

type remoteSignResponse struct {
	Signature string `json:"signature"`
	Error     string `json:"error,omitempty"`
}

func (r *RemoteSigner) Sign(ctx context.Context, publicKey string, payload SignPayload, net network.Identity) (Signature, error) {
	req := remoteSignRequest{PublicKey: publicKey, Payload: payload, ABI: payload.ABI, Network: net}
	var resp remoteSignResponse
	if _, err := httpx.PostJSON(ctx, r.client, r.url+"/sign", req, nil, &resp); err != nil {
		return nil, clierr.Wrap(clierr.CodeSigningFailed, "remote signer request failed", err)
	}
	if resp.Error != "" {
		return nil, clierr.New(clierr.CodeSigningFailed, "remote signer: "+resp.Error)
	}
	if strings.TrimSpace(resp.Signature) == "" {
		return nil, clierr.New(clierr.CodeSigningFailed, "remote signer returned an empty signature")
	}
	sig, err := hexutil.Decode(resp.Signature)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigningFailed, "decode remote signature", err)
	}
	return Signature(sig), nil
}
