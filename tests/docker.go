package tests

import (
	"context"
	"fmt"
	"time"

	"github.com/ory/dockertest/v3"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// LaunchMongoDocker runs a fresh mongo docker image and returns its
// connection uri and a function to purge the container.
func LaunchMongoDocker() (string, func(), error) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		return "", nil, fmt.Errorf("creating docker pool: %s", err)
	}
	mongoDocker, err := pool.Run("mongo", "4.4", nil)
	if err != nil {
		return "", nil, fmt.Errorf("running mongo docker container: %s", err)
	}
	if err := mongoDocker.Expire(180); err != nil {
		return "", nil, fmt.Errorf("setting container expiration: %s", err)
	}
	purge := func() {
		if err := pool.Purge(mongoDocker); err != nil {
			panic(fmt.Sprintf("couldn't purge mongo from docker pool: %s", err))
		}
	}
	uri := fmt.Sprintf("mongodb://127.0.0.1:%s", mongoDocker.GetPort("27017/tcp"))
	pool.MaxWait = time.Second * 30
	if err := pool.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
		if err != nil {
			return err
		}
		defer func() { _ = client.Disconnect(ctx) }()
		return client.Ping(ctx, nil)
	}); err != nil {
		purge()
		return "", nil, fmt.Errorf("waiting for mongo: %s", err)
	}
	return uri, purge, nil
}
