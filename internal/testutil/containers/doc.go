// Package containers starts Docker containers for integration tests with
// testcontainers-go: a Mosquitto broker for the MQTT sink and MySQL for the
// event log.
//
// Containers are usually started once per package in TestMain:
//
//	var broker *containers.MosquittoContainer
//
//	func TestMain(m *testing.M) {
//	    var err error
//	    broker, err = containers.NewMosquittoContainer(context.Background(), nil)
//	    if err != nil {
//	        panic(err)
//	    }
//	    code := m.Run()
//	    _ = broker.Terminate(context.Background())
//	    os.Exit(code)
//	}
//
// The container helpers build only with the integration tag:
//
//	go test -tags=integration ./...
//
//nolint:misspell // Mosquitto is the official Eclipse project name
package containers
