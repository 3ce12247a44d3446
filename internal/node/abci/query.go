// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package abci

import (
	"context"

	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/cometbft/cometbft/proto/tendermint/crypto"
	"gitlab.com/accumulatenetwork/platform/internal/database"
	"gitlab.com/accumulatenetwork/platform/internal/storage/merk"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
	"gitlab.com/accumulatenetwork/platform/protocol"
	"google.golang.org/grpc/codes"
)

// Query paths.
const (
	QueryIdentities                = "/identities"
	QueryIdentitiesByPublicKeyHash = "/identities/by-public-key-hash"
	QueryIdentityIDsByKeyHash      = "/identities/keys/hashes"
	QueryDataContract              = "/dataContracts"
	QueryDocuments                 = "/dataContracts/documents"
	QueryProofs                    = "/proofs"
)

// ProofOpType is the type of the proof operations of query responses.
const ProofOpType = "ics23:iavl"

type queryHandler func(ctx context.Context, req *abci.RequestQuery) (any, []*merk.Proof, error)

func (app *Platform) queryHandlers() map[string]queryHandler {
	return map[string]queryHandler{
		QueryIdentities:                app.queryIdentities,
		QueryIdentitiesByPublicKeyHash: app.queryIdentitiesByPublicKeyHashes,
		QueryIdentityIDsByKeyHash:      app.queryIdentityIDsByPublicKeyHashes,
		QueryDataContract:              app.queryDataContract,
		QueryDocuments:                 app.queryDocuments,
		QueryProofs:                    app.queryProofs,
	}
}

// ResponseMetadata describes the committed state a query was served from.
type ResponseMetadata struct {
	Height                int64  `cbor:"height"`
	CoreChainLockedHeight uint32 `cbor:"coreChainLockedHeight"`
}

// IdentitiesRequest selects identities by id.
type IdentitiesRequest struct {
	IDs [][]byte `cbor:"ids"`
}

type IdentitiesResponse struct {
	Identities [][]byte         `cbor:"identities"`
	Metadata   ResponseMetadata `cbor:"metadata"`
}

// PublicKeyHashesRequest selects identities by the hashes of their keys.
type PublicKeyHashesRequest struct {
	PublicKeyHashes [][]byte `cbor:"publicKeyHashes"`
}

// IdentitiesByPublicKeyHashesResponse holds, for each requested hash, the
// CBOR list of encoded identities holding it.
type IdentitiesByPublicKeyHashesResponse struct {
	Identities [][]byte         `cbor:"identities"`
	Metadata   ResponseMetadata `cbor:"metadata"`
}

// IdentityIDsByPublicKeyHashesResponse holds, for each requested hash, the
// CBOR list of ids of the identities holding it.
type IdentityIDsByPublicKeyHashesResponse struct {
	IdentityIDs [][]byte         `cbor:"identityIds"`
	Metadata    ResponseMetadata `cbor:"metadata"`
}

type DataContractRequest struct {
	ID []byte `cbor:"id"`
}

type DataContractResponse struct {
	DataContract []byte           `cbor:"dataContract"`
	Metadata     ResponseMetadata `cbor:"metadata"`
}

// DocumentsRequest is a document query. Where and order by clauses are
// encoded as described by [database.RawQuery].
type DocumentsRequest struct {
	ContractID []byte `cbor:"contractId"`
	Type       string `cbor:"type"`
	database.RawQuery
}

type DocumentsResponse struct {
	Documents [][]byte         `cbor:"documents"`
	Metadata  ResponseMetadata `cbor:"metadata"`
}

// DocumentRef identifies a document to prove.
type DocumentRef struct {
	ContractID []byte `cbor:"contractId"`
	Type       string `cbor:"type"`
	DocumentID []byte `cbor:"documentId"`
}

// ProofsRequest selects the entities to prove.
type ProofsRequest struct {
	IdentityIDs     [][]byte      `cbor:"identityIds"`
	DataContractIDs [][]byte      `cbor:"dataContractIds"`
	Documents       []DocumentRef `cbor:"documents"`
}

// ProofResponse accompanies the proof operations of a proved query.
type ProofResponse struct {
	RootHash []byte           `cbor:"rootHash"`
	Metadata ResponseMetadata `cbor:"metadata"`
}

// Query implements [abci.Application]. Queries read the committed state.
func (app *Platform) Query(ctx context.Context, req *abci.RequestQuery) (*abci.ResponseQuery, error) {
	handler, ok := app.queries[req.Path]
	if !ok {
		return app.queryFailed(req, codes.Unimplemented, errors.NotAllowed.WithFormat("unknown query path %q", req.Path)), nil
	}

	value, proofs, err := handler(ctx, req)
	if err != nil {
		return app.queryFailed(req, queryCode(err), err), nil
	}

	meta := app.responseMetadata()
	res := &abci.ResponseQuery{Height: meta.Height}
	if req.Prove {
		res.ProofOps = new(crypto.ProofOps)
		for _, p := range proofs {
			res.ProofOps.Ops = append(res.ProofOps.Ops, crypto.ProofOp{Type: ProofOpType, Key: p.Key, Data: p.Proof})
		}
		value = &ProofResponse{RootHash: app.Executor.Database.Store.GetRootHash(false), Metadata: meta}
	}

	res.Value, err = protocol.MarshalCBOR(value)
	if err != nil {
		return app.queryFailed(req, codes.Internal, err), nil
	}
	queryCount.WithLabelValues(req.Path, codes.OK.String()).Inc()
	return res, nil
}

func (app *Platform) queryFailed(req *abci.RequestQuery, code codes.Code, err error) *abci.ResponseQuery {
	if code == codes.Internal {
		app.logger.Error("Query failed", "path", req.Path, "error", err)
	} else {
		app.logger.Debug("Query failed", "path", req.Path, "code", code, "error", err)
	}
	queryCount.WithLabelValues(req.Path, code.String()).Inc()
	return &abci.ResponseQuery{
		Code:      uint32(code),
		Log:       err.Error(),
		Info:      code.String(),
		Codespace: "platform",
	}
}

func queryCode(err error) codes.Code {
	var invalid *database.InvalidQueryError
	switch {
	case errors.As(err, &invalid),
		errors.Is(err, errors.BadRequest),
		errors.Is(err, errors.EncodingError):
		return codes.InvalidArgument
	case errors.Is(err, errors.NotFound):
		return codes.NotFound
	default:
		return codes.Internal
	}
}

func decodeQuery(req *abci.RequestQuery, v any) error {
	if len(req.Data) == 0 {
		return nil
	}
	err := protocol.UnmarshalCBOR(req.Data, v)
	if err != nil {
		return errors.BadRequest.WithFormat("decode %s request: %w", req.Path, err)
	}
	return nil
}

func (app *Platform) responseMetadata() ResponseMetadata {
	meta := ResponseMetadata{CoreChainLockedHeight: app.Executor.LastCoreChainLockedHeight()}
	m, err := app.Executor.Metadata()
	if err == nil && m != nil {
		meta.Height = int64(m.Height)
	}
	return meta
}

// committed returns false if nothing has been committed yet.
func (app *Platform) committed() (bool, error) {
	m, err := app.Executor.Metadata()
	if err != nil {
		return false, errors.UnknownError.WithFormat("load metadata: %w", err)
	}
	return m != nil, nil
}

func (app *Platform) checkCount(what string, n int) error {
	if n > app.MaxIdentitiesPerRequest {
		return errors.BadRequest.WithFormat("maximum number of %d requested %s exceeded", app.MaxIdentitiesPerRequest, what)
	}
	return nil
}

func parseIDs(name string, raw [][]byte) ([]protocol.Identifier, error) {
	ids := make([]protocol.Identifier, len(raw))
	for i, b := range raw {
		id, err := protocol.IdentifierFromBytes(b)
		if err != nil {
			return nil, errors.BadRequest.WithFormat("%s %d: %w", name, i, err)
		}
		ids[i] = id
	}
	return ids, nil
}

func (app *Platform) queryIdentities(ctx context.Context, req *abci.RequestQuery) (any, []*merk.Proof, error) {
	params := new(IdentitiesRequest)
	err := decodeQuery(req, params)
	if err != nil {
		return nil, nil, err
	}
	err = app.checkCount("identities", len(params.IDs))
	if err != nil {
		return nil, nil, err
	}
	ids, err := parseIDs("id", params.IDs)
	if err != nil {
		return nil, nil, err
	}

	res := &IdentitiesResponse{Identities: [][]byte{}, Metadata: app.responseMetadata()}
	if ok, err := app.committed(); err != nil || !ok {
		return res, nil, err
	}

	if req.Prove {
		proofs, err := app.proveIdentities(ids)
		return nil, proofs, err
	}

	for _, id := range ids {
		identity, err := app.Executor.Repository().FetchIdentity(ctx, id, nil)
		if err != nil {
			return nil, nil, errors.UnknownError.WithFormat("load identity %v: %w", id, err)
		}
		if identity == nil {
			continue
		}
		b, err := identity.MarshalBinary()
		if err != nil {
			return nil, nil, errors.EncodingError.WithFormat("encode identity %v: %w", id, err)
		}
		res.Identities = append(res.Identities, b)
	}
	return res, nil, nil
}

func (app *Platform) proveIdentities(ids []protocol.Identifier) ([]*merk.Proof, error) {
	proofs := make([]*merk.Proof, 0, len(ids))
	for _, id := range ids {
		p, err := app.Executor.Database.Identities.Prove(id)
		if err != nil {
			return nil, errors.UnknownError.WithFormat("prove identity %v: %w", id, err)
		}
		proofs = append(proofs, p)
	}
	return proofs, nil
}

// identityIDsByHashes looks up the identities holding each hash.
func (app *Platform) identityIDsByHashes(ctx context.Context, req *abci.RequestQuery) ([][]byte, [][]protocol.Identifier, bool, error) {
	params := new(PublicKeyHashesRequest)
	err := decodeQuery(req, params)
	if err != nil {
		return nil, nil, false, err
	}
	err = app.checkCount("public key hashes", len(params.PublicKeyHashes))
	if err != nil {
		return nil, nil, false, err
	}

	ok, err := app.committed()
	if err != nil || !ok {
		return params.PublicKeyHashes, nil, false, err
	}

	ids, err := app.Executor.Repository().FetchIdentityIDsByPublicKeyHashes(ctx, params.PublicKeyHashes, nil)
	if err != nil {
		return nil, nil, false, errors.UnknownError.WithFormat("load identity ids: %w", err)
	}
	return params.PublicKeyHashes, ids, true, nil
}

func (app *Platform) proveHashes(hashes [][]byte, ids [][]protocol.Identifier) ([]*merk.Proof, error) {
	var proofs []*merk.Proof
	for i, hash := range hashes {
		p, err := app.Executor.Database.PublicKeyHashes.Prove(hash)
		if err != nil {
			return nil, errors.UnknownError.WithFormat("prove public key hash %x: %w", hash, err)
		}
		proofs = append(proofs, p)

		more, err := app.proveIdentities(ids[i])
		if err != nil {
			return nil, err
		}
		proofs = append(proofs, more...)
	}
	return proofs, nil
}

func (app *Platform) queryIdentitiesByPublicKeyHashes(ctx context.Context, req *abci.RequestQuery) (any, []*merk.Proof, error) {
	hashes, ids, ok, err := app.identityIDsByHashes(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	res := &IdentitiesByPublicKeyHashesResponse{Identities: make([][]byte, len(hashes)), Metadata: app.responseMetadata()}
	if !ok {
		for i := range res.Identities {
			res.Identities[i], err = protocol.MarshalCBOR([][]byte{})
			if err != nil {
				return nil, nil, err
			}
		}
		return res, nil, nil
	}

	if req.Prove {
		proofs, err := app.proveHashes(hashes, ids)
		return nil, proofs, err
	}

	for i, list := range ids {
		identities := [][]byte{}
		for _, id := range list {
			identity, err := app.Executor.Repository().FetchIdentity(ctx, id, nil)
			if err != nil {
				return nil, nil, errors.UnknownError.WithFormat("load identity %v: %w", id, err)
			}
			if identity == nil {
				return nil, nil, errors.InternalError.WithFormat("identity %v of public key hash %x does not exist", id, hashes[i])
			}
			b, err := identity.MarshalBinary()
			if err != nil {
				return nil, nil, errors.EncodingError.WithFormat("encode identity %v: %w", id, err)
			}
			identities = append(identities, b)
		}
		res.Identities[i], err = protocol.MarshalCBOR(identities)
		if err != nil {
			return nil, nil, err
		}
	}
	return res, nil, nil
}

func (app *Platform) queryIdentityIDsByPublicKeyHashes(ctx context.Context, req *abci.RequestQuery) (any, []*merk.Proof, error) {
	hashes, ids, ok, err := app.identityIDsByHashes(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	res := &IdentityIDsByPublicKeyHashesResponse{IdentityIDs: make([][]byte, len(hashes)), Metadata: app.responseMetadata()}
	if ok && req.Prove {
		proofs, err := app.proveHashes(hashes, ids)
		return nil, proofs, err
	}

	for i := range hashes {
		list := [][]byte{}
		if ok {
			for _, id := range ids[i] {
				list = append(list, id.Bytes())
			}
		}
		res.IdentityIDs[i], err = protocol.MarshalCBOR(list)
		if err != nil {
			return nil, nil, err
		}
	}
	return res, nil, nil
}

func (app *Platform) queryDataContract(ctx context.Context, req *abci.RequestQuery) (any, []*merk.Proof, error) {
	params := new(DataContractRequest)
	err := decodeQuery(req, params)
	if err != nil {
		return nil, nil, err
	}
	id, err := protocol.IdentifierFromBytes(params.ID)
	if err != nil {
		return nil, nil, errors.BadRequest.WithFormat("id: %w", err)
	}

	if req.Prove {
		p, err := app.Executor.Database.DataContracts.Prove(id)
		if err != nil {
			return nil, nil, errors.UnknownError.WithFormat("prove data contract %v: %w", id, err)
		}
		return nil, []*merk.Proof{p}, nil
	}

	contract, err := app.Executor.Repository().FetchDataContract(ctx, id, nil)
	if err != nil {
		return nil, nil, errors.UnknownError.WithFormat("load data contract %v: %w", id, err)
	}
	if contract == nil {
		return nil, nil, errors.NotFound.WithFormat("data contract %v not found", id)
	}
	b, err := contract.MarshalBinary()
	if err != nil {
		return nil, nil, errors.EncodingError.WithFormat("encode data contract %v: %w", id, err)
	}
	return &DataContractResponse{DataContract: b, Metadata: app.responseMetadata()}, nil, nil
}

func (app *Platform) queryDocuments(ctx context.Context, req *abci.RequestQuery) (any, []*merk.Proof, error) {
	params := new(DocumentsRequest)
	err := decodeQuery(req, params)
	if err != nil {
		return nil, nil, err
	}
	contractID, err := protocol.IdentifierFromBytes(params.ContractID)
	if err != nil {
		return nil, nil, errors.BadRequest.WithFormat("contract id: %w", err)
	}
	query, err := params.Parse()
	if err != nil {
		return nil, nil, err
	}

	contract, err := app.Executor.Repository().FetchDataContract(ctx, contractID, nil)
	if err != nil {
		return nil, nil, errors.UnknownError.WithFormat("load data contract %v: %w", contractID, err)
	}
	if contract == nil {
		return nil, nil, errors.NotFound.WithFormat("data contract %v not found", contractID)
	}

	docs, err := app.Executor.Repository().FetchDocuments(ctx, contractID, params.Type, query, nil)
	if err != nil {
		return nil, nil, err
	}

	if req.Prove {
		proofs := make([]*merk.Proof, 0, len(docs))
		for _, doc := range docs {
			p, err := app.Executor.Database.Documents.Prove(contractID, params.Type, doc.ID)
			if err != nil {
				return nil, nil, errors.UnknownError.WithFormat("prove document %v: %w", doc.ID, err)
			}
			proofs = append(proofs, p)
		}
		return nil, proofs, nil
	}

	res := &DocumentsResponse{Documents: make([][]byte, 0, len(docs)), Metadata: app.responseMetadata()}
	for _, doc := range docs {
		b, err := doc.MarshalBinary()
		if err != nil {
			return nil, nil, errors.EncodingError.WithFormat("encode document %v: %w", doc.ID, err)
		}
		res.Documents = append(res.Documents, b)
	}
	return res, nil, nil
}

// queryProofs always proves, whether or not the request asks for it.
func (app *Platform) queryProofs(_ context.Context, req *abci.RequestQuery) (any, []*merk.Proof, error) {
	params := new(ProofsRequest)
	err := decodeQuery(req, params)
	if err != nil {
		return nil, nil, err
	}
	err = app.checkCount("identities", len(params.IdentityIDs))
	if err != nil {
		return nil, nil, err
	}
	req.Prove = true

	identityIDs, err := parseIDs("identity id", params.IdentityIDs)
	if err != nil {
		return nil, nil, err
	}
	contractIDs, err := parseIDs("data contract id", params.DataContractIDs)
	if err != nil {
		return nil, nil, err
	}

	proofs, err := app.proveIdentities(identityIDs)
	if err != nil {
		return nil, nil, err
	}
	for _, id := range contractIDs {
		p, err := app.Executor.Database.DataContracts.Prove(id)
		if err != nil {
			return nil, nil, errors.UnknownError.WithFormat("prove data contract %v: %w", id, err)
		}
		proofs = append(proofs, p)
	}
	for i, ref := range params.Documents {
		contractID, err1 := protocol.IdentifierFromBytes(ref.ContractID)
		docID, err2 := protocol.IdentifierFromBytes(ref.DocumentID)
		if err1 != nil || err2 != nil {
			return nil, nil, errors.BadRequest.WithFormat("document %d: invalid identifier", i)
		}
		p, err := app.Executor.Database.Documents.Prove(contractID, ref.Type, docID)
		if err != nil {
			return nil, nil, errors.UnknownError.WithFormat("prove document %v: %w", docID, err)
		}
		proofs = append(proofs, p)
	}
	return nil, proofs, nil
}

