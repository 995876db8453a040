package blobsink

import (
	"context"
	"fmt"
)

type fakeBlockStore struct {
	containerExists bool
	validateErr     error
	createErr       error
	commitErr       error
	// stageFailures makes the next N StageBlock calls fail before succeeding again.
	stageFailures int

	validateCalls int
	createCalls   int
	stageCalls    int
	commitCalls   int
	stagedIDs     []string
	stagedBlocks  [][]byte
	committedIDs  []string
	closed        bool
}

func newFakeBlockStore() *fakeBlockStore {
	return &fakeBlockStore{containerExists: true}
}

func (f *fakeBlockStore) ValidateContainer(ctx context.Context) (bool, error) {
	f.validateCalls++
	if f.validateErr != nil {
		return false, f.validateErr
	}
	return f.containerExists, nil
}

func (f *fakeBlockStore) CreateObject(ctx context.Context) error {
	f.createCalls++
	return f.createErr
}

func (f *fakeBlockStore) StageBlock(ctx context.Context, blockID string, data []byte) error {
	f.stageCalls++
	if f.stageFailures > 0 {
		f.stageFailures--
		return fmt.Errorf("stage block: transient error")
	}

	block := make([]byte, len(data))
	copy(block, data)
	f.stagedIDs = append(f.stagedIDs, blockID)
	f.stagedBlocks = append(f.stagedBlocks, block)
	return nil
}

func (f *fakeBlockStore) CommitObject(ctx context.Context, blockIDs []string) error {
	f.commitCalls++
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committedIDs = blockIDs
	return nil
}

func (f *fakeBlockStore) Close() {
	f.closed = true
}

type fakeEnvRepo struct {
	envVars map[string]string
}

func (repo fakeEnvRepo) Get(key string) string {
	value, ok := repo.envVars[key]
	if ok {
		return value
	} else {
		return ""
	}
}

func (repo fakeEnvRepo) Set(key, value string) error {
	repo.envVars[key] = value
	return nil
}

func (repo fakeEnvRepo) Unset(key string) error {
	repo.envVars[key] = ""
	return nil
}

func (repo fakeEnvRepo) List() []string {
	envs := []string{}
	for k, v := range repo.envVars {
		envs = append(envs, fmt.Sprintf("%s=%s", k, v))
	}
	return envs
}
