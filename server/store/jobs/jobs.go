package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/listenup/listenup/common/gerror"
	"github.com/listenup/listenup/common/logger"
	"github.com/listenup/listenup/common/models"
	"github.com/listenup/listenup/server/store"
)

const collectionName = "jobs"

type JobStore struct {
	db *store.DB
	logger.Log
}

func NewStore(db *store.DB, logFactory logger.LogFactory) *JobStore {
	return &JobStore{
		db:  db,
		Log: logFactory("JobStore"),
	}
}

// Initialize creates the secondary indexes the store's queries rely on.
// Safe to call on every startup; index creation is idempotent.
func (d *JobStore) Initialize(ctx context.Context) error {
	_, err := d.collection().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "fingerprint", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return errors.Wrap(err, "error creating job indexes")
	}
	return nil
}

func (d *JobStore) collection() *mongo.Collection {
	return d.db.Collection(collectionName)
}

// Create a new job.
// Returns gerror.ErrDuplicateJob if a job with the same id already exists.
func (d *JobStore) Create(ctx context.Context, job *models.Job) error {
	_, err := d.collection().InsertOne(ctx, job)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return gerror.NewErrDuplicateJob(fmt.Sprintf("Job %s already exists", job.ID)).Wrap(err)
		}
		return errors.Wrapf(err, "error creating job %s", job.ID)
	}
	return nil
}

// Read an existing job, looking it up by id.
// Returns gerror.ErrNotFound if the job does not exist.
func (d *JobStore) Read(ctx context.Context, id models.JobID) (*models.Job, error) {
	job := &models.Job{}
	err := d.collection().FindOne(ctx, bson.M{"_id": id}).Decode(job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, gerror.NewErrNotFound(fmt.Sprintf("Job %s does not exist", id)).Wrap(err)
		}
		return nil, errors.Wrapf(err, "error reading job %s", id)
	}
	return job, nil
}

// ReadByFingerprint reads the most recently created job owned by a user with a
// matching definition fingerprint.
// Returns gerror.ErrNotFound if no such job exists.
func (d *JobStore) ReadByFingerprint(ctx context.Context, userID models.UserID, fingerprint string) (*models.Job, error) {
	job := &models.Job{}
	filter := bson.M{"user_id": userID, "fingerprint": fingerprint}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	err := d.collection().FindOne(ctx, filter, opts).Decode(job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, gerror.NewErrNotFound("No job with matching fingerprint").Wrap(err)
		}
		return nil, errors.Wrapf(err, "error reading job by fingerprint for user %s", userID)
	}
	return job, nil
}

// UpdateJobStatus sets the job-level status and bumps updated_at.
// Returns gerror.ErrNotFound if the job does not exist.
func (d *JobStore) UpdateJobStatus(ctx context.Context, id models.JobID, status models.Status) error {
	update := jobStatusUpdateDocument(status, models.NewTime(time.Now()))
	result, err := d.collection().UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return errors.Wrapf(err, "error updating status of job %s", id)
	}
	if result.MatchedCount == 0 {
		return gerror.NewErrNotFound(fmt.Sprintf("Job %s does not exist", id))
	}
	return nil
}

// UpdateStep applies a partial update to a single step of a job, addressed by
// step id. The write updates one document so concurrent status events cannot
// interleave within a step.
// Returns gerror.ErrNotFound if the job or step does not exist.
func (d *JobStore) UpdateStep(ctx context.Context, jobID models.JobID, stepID models.StepID, update store.StepUpdate) error {
	filter := bson.M{"_id": jobID, "steps.step_id": stepID}
	document := stepUpdateDocument(update, models.NewTime(time.Now()))
	result, err := d.collection().UpdateOne(ctx, filter, document)
	if err != nil {
		return errors.Wrapf(err, "error updating step %s of job %s", stepID, jobID)
	}
	if result.MatchedCount == 0 {
		return gerror.NewErrNotFound(fmt.Sprintf("Job %s has no step %s", jobID, stepID))
	}
	return nil
}

// ReadStepOutputs returns the stored outputs of a single step of a job. A step
// with no outputs recorded yet returns an empty map.
// Returns gerror.ErrNotFound if the job or step does not exist.
func (d *JobStore) ReadStepOutputs(ctx context.Context, jobID models.JobID, stepID models.StepID) (map[string]string, error) {
	filter := bson.M{"_id": jobID, "steps.step_id": stepID}
	opts := options.FindOne().SetProjection(bson.M{
		"steps": bson.M{"$elemMatch": bson.M{"step_id": stepID}},
	})
	doc := &models.Job{}
	err := d.collection().FindOne(ctx, filter, opts).Decode(doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, gerror.NewErrNotFound(fmt.Sprintf("Job %s has no step %s", jobID, stepID)).Wrap(err)
		}
		return nil, errors.Wrapf(err, "error reading outputs of step %s of job %s", stepID, jobID)
	}
	if len(doc.Steps) == 0 || doc.Steps[0].Outputs == nil {
		return map[string]string{}, nil
	}
	return doc.Steps[0].Outputs, nil
}

// ListUserJobs lists all jobs owned by a user, newest first.
func (d *JobStore) ListUserJobs(ctx context.Context, userID models.UserID) ([]*models.Job, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := d.collection().Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "error listing jobs for user %s", userID)
	}
	defer cursor.Close(ctx)
	var jobs []*models.Job
	err = cursor.All(ctx, &jobs)
	if err != nil {
		return nil, errors.Wrapf(err, "error decoding jobs for user %s", userID)
	}
	return jobs, nil
}

// jobStatusUpdateDocument builds the update document that moves a job to the
// specified status.
func jobStatusUpdateDocument(status models.Status, now models.Time) bson.M {
	return bson.M{
		"$set": bson.M{
			"status":     status,
			"updated_at": now,
		},
	}
}

// stepUpdateDocument builds the update document for a positional step update.
// Fields of the StepUpdate that are nil are left out of the document entirely
// so the stored values survive. ClearError is ignored when an ErrorMessage is
// also being set.
func stepUpdateDocument(update store.StepUpdate, now models.Time) bson.M {
	set := bson.M{
		"updated_at": now,
	}
	if update.Status != nil {
		set["steps.$.status"] = *update.Status
	}
	if update.Outputs != nil {
		set["steps.$.outputs"] = update.Outputs
	}
	if update.StartedAt != nil {
		set["steps.$.started_at"] = *update.StartedAt
	}
	if update.FinishedAt != nil {
		set["steps.$.finished_at"] = *update.FinishedAt
	}
	if update.ErrorMessage != nil {
		set["steps.$.error_message"] = *update.ErrorMessage
	}
	document := bson.M{"$set": set}
	if update.ClearError && update.ErrorMessage == nil {
		document["$unset"] = bson.M{"steps.$.error_message": ""}
	}
	return document
}
