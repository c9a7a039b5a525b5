package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	sharedDomain "github.com/davicafu/shoplab/internal/shared/domain"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// OutboxRepoMongoDB implementa el lado del publisher sobre una colección
// outbox, para despliegues cuyo camino de escritura ya es Mongo (el insert
// de la fila outbox viaja en la misma sesión causal que la entidad).
//
// Mongo no tiene un UPDATE condicional multi-documento, así que el claim va
// en dos fases: se leen los candidatos ordenados y se reclama cada documento
// individualmente con FindOneAndUpdate condicional, que sí es atómico por
// documento. La selección de candidatos (orden por agregado incluido) está
// factorizada en selectClaimable para poder testearla sin servidor.
type OutboxRepoMongoDB struct {
	coll         *mongo.Collection
	staleTimeout time.Duration
}

func NewOutboxRepoMongoDB(client *mongo.Client, dbName string, staleTimeout time.Duration) *OutboxRepoMongoDB {
	return &OutboxRepoMongoDB{
		coll:         client.Database(dbName).Collection("outbox"),
		staleTimeout: staleTimeout,
	}
}

// mongoOutboxMessage mapea los documentos de la colección.
type mongoOutboxMessage struct {
	Seq          int64      `bson:"seq"`
	ID           uuid.UUID  `bson:"_id"`
	EventType    string     `bson:"eventType"`
	Payload      []byte     `bson:"payload"`
	AggregateID  string     `bson:"aggregateId,omitempty"`
	Status       string     `bson:"status"`
	AttemptCount int        `bson:"attemptCount"`
	LastError    string     `bson:"lastError,omitempty"`
	CreatedAt    time.Time  `bson:"createdAt"`
	AvailableAt  time.Time  `bson:"availableAt"`
	ClaimedBy    *uuid.UUID `bson:"claimedBy,omitempty"`
	ClaimedAt    *time.Time `bson:"claimedAt,omitempty"`
	ProcessedAt  *time.Time `bson:"processedAt,omitempty"`
}

// candidate es la vista mínima que necesita la selección de claim.
type candidate struct {
	ID          uuid.UUID
	Seq         int64
	AggregateID string
	Status      sharedDomain.OutboxStatus
	AvailableAt time.Time
	ClaimedAt   *time.Time
}

// selectClaimable recorre los documentos sin terminar en orden de inserción
// y devuelve los IDs reclamables: pending con available_at vencido o
// processing con claim caducado, saltando cualquier mensaje cuyo agregado
// tenga otro anterior sin terminar.
func selectClaimable(docs []candidate, now, staleBefore time.Time, limit int) []uuid.UUID {
	var ids []uuid.UUID
	blocked := make(map[string]bool)

	for _, d := range docs {
		if len(ids) >= limit {
			break
		}

		if d.AggregateID != "" {
			if blocked[d.AggregateID] {
				continue
			}
			// El primer documento sin terminar de cada agregado decide;
			// los siguientes quedan bloqueados hasta el próximo ciclo.
			blocked[d.AggregateID] = true
		}

		switch d.Status {
		case sharedDomain.OutboxPending:
			if !d.AvailableAt.After(now) {
				ids = append(ids, d.ID)
			}
		case sharedDomain.OutboxProcessing:
			if d.ClaimedAt != nil && !d.ClaimedAt.After(staleBefore) {
				ids = append(ids, d.ID)
			}
		}
	}

	return ids
}

// ClaimPending implementa el claim en dos fases descrito arriba.
func (r *OutboxRepoMongoDB) ClaimPending(ctx context.Context, claimant uuid.UUID, limit int) ([]sharedDomain.OutboxMessage, error) {
	now := time.Now().UTC()
	staleBefore := now.Add(-r.staleTimeout)

	filter := bson.M{"status": bson.M{"$in": bson.A{
		sharedDomain.OutboxPending.String(),
		sharedDomain.OutboxProcessing.String(),
	}}}
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list outbox candidates: %w", err)
	}

	var docs []candidate
	for cursor.Next(ctx) {
		var mo mongoOutboxMessage
		if err := cursor.Decode(&mo); err != nil {
			cursor.Close(ctx)
			return nil, err
		}
		docs = append(docs, candidate{
			ID:          mo.ID,
			Seq:         mo.Seq,
			AggregateID: mo.AggregateID,
			Status:      sharedDomain.OutboxStatus(mo.Status),
			AvailableAt: mo.AvailableAt,
			ClaimedAt:   mo.ClaimedAt,
		})
	}
	if err := cursor.Err(); err != nil {
		cursor.Close(ctx)
		return nil, err
	}
	cursor.Close(ctx)

	var claimed []sharedDomain.OutboxMessage
	for _, id := range selectClaimable(docs, now, staleBefore, limit) {
		// Condición repetida en el filtro: si otro worker llegó antes, el
		// FindOneAndUpdate no matchea y simplemente saltamos el documento.
		claimFilter := bson.M{
			"_id": id,
			"$or": bson.A{
				bson.M{"status": sharedDomain.OutboxPending.String(), "availableAt": bson.M{"$lte": now}},
				bson.M{"status": sharedDomain.OutboxProcessing.String(), "claimedAt": bson.M{"$lte": staleBefore}},
			},
		}
		update := bson.M{"$set": bson.M{
			"status":    sharedDomain.OutboxProcessing.String(),
			"claimedBy": claimant,
			"claimedAt": now,
		}}

		var mo mongoOutboxMessage
		err := r.coll.FindOneAndUpdate(ctx, claimFilter, update,
			options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&mo)
		if errors.Is(err, mongo.ErrNoDocuments) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to claim outbox message %s: %w", id, err)
		}
		claimed = append(claimed, fromMongoOutboxMessage(&mo))
	}

	return claimed, nil
}

// MarkProcessed registra entrega exitosa. El filtro por claimedBy impide
// que un worker con un claim ya recuperado pise el estado del nuevo dueño.
func (r *OutboxRepoMongoDB) MarkProcessed(ctx context.Context, id uuid.UUID, claimant uuid.UUID, attempts int) error {
	now := time.Now().UTC()
	return r.update(ctx, id, claimant, bson.M{
		"$set":   bson.M{"status": sharedDomain.OutboxProcessed.String(), "attemptCount": attempts, "processedAt": now},
		"$unset": bson.M{"claimedBy": "", "claimedAt": ""},
	})
}

func (r *OutboxRepoMongoDB) Release(ctx context.Context, id uuid.UUID, claimant uuid.UUID, attempts int, lastError string, availableAt time.Time) error {
	return r.update(ctx, id, claimant, bson.M{
		"$set":   bson.M{"status": sharedDomain.OutboxPending.String(), "attemptCount": attempts, "lastError": lastError, "availableAt": availableAt},
		"$unset": bson.M{"claimedBy": "", "claimedAt": ""},
	})
}

func (r *OutboxRepoMongoDB) MarkFailed(ctx context.Context, id uuid.UUID, claimant uuid.UUID, attempts int, lastError string) error {
	return r.update(ctx, id, claimant, bson.M{
		"$set":   bson.M{"status": sharedDomain.OutboxFailed.String(), "attemptCount": attempts, "lastError": lastError},
		"$unset": bson.M{"claimedBy": "", "claimedAt": ""},
	})
}

func (r *OutboxRepoMongoDB) FetchFailed(ctx context.Context, limit int) ([]sharedDomain.OutboxMessage, error) {
	filter := bson.M{"status": sharedDomain.OutboxFailed.String()}
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: -1}}).SetLimit(int64(limit))

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var msgs []sharedDomain.OutboxMessage
	for cursor.Next(ctx) {
		var mo mongoOutboxMessage
		if err := cursor.Decode(&mo); err != nil {
			return nil, err
		}
		msgs = append(msgs, fromMongoOutboxMessage(&mo))
	}
	return msgs, cursor.Err()
}

func (r *OutboxRepoMongoDB) update(ctx context.Context, id uuid.UUID, claimant uuid.UUID, update bson.M) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id, "claimedBy": claimant}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", sharedDomain.ErrOutboxMessageNotFound, id)
	}
	return nil
}

func fromMongoOutboxMessage(mo *mongoOutboxMessage) sharedDomain.OutboxMessage {
	return sharedDomain.OutboxMessage{
		Seq:          mo.Seq,
		ID:           mo.ID,
		EventType:    mo.EventType,
		Payload:      mo.Payload,
		AggregateID:  mo.AggregateID,
		Status:       sharedDomain.OutboxStatus(mo.Status),
		AttemptCount: mo.AttemptCount,
		LastError:    mo.LastError,
		CreatedAt:    mo.CreatedAt,
		AvailableAt:  mo.AvailableAt,
		ClaimedBy:    mo.ClaimedBy,
		ClaimedAt:    mo.ClaimedAt,
		ProcessedAt:  mo.ProcessedAt,
	}
}

// Verificación en tiempo de compilación.
var _ sharedDomain.OutboxRepository = (*OutboxRepoMongoDB)(nil)
