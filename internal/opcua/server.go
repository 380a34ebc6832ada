// Package opcua publishes forecast headline values to the plant network:
// one namespace per production line, refreshed after every pass.
package opcua

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/awcullen/opcua/server"
	"github.com/awcullen/opcua/ua"
	"github.com/rs/zerolog/log"
)

const (
	pkiDir   = "./pki"
	certFile = "./pki/server.crt"
	keyFile  = "./pki/server.key"
)

// DataType identifies the OPC UA value type of a node.
type DataType int

const (
	DataTypeDouble DataType = iota
	DataTypeFloat
	DataTypeInt32
	DataTypeInt64
	DataTypeString
	DataTypeBool
	DataTypeDateTime
)

// NodeDefinition describes one published variable node.
type NodeDefinition struct {
	Name         string      // Node name (e.g., "TotalTons")
	DisplayName  string      // Human-readable name
	Description  string      // Description of the node
	DataType     DataType    // Value type
	Unit         string      // Engineering unit (t, kg, ...)
	InitialValue interface{} // Initial/default value
}

func dataTypeID(dt DataType) ua.NodeID {
	switch dt {
	case DataTypeFloat:
		return ua.DataTypeIDFloat
	case DataTypeInt32:
		return ua.DataTypeIDInt32
	case DataTypeInt64:
		return ua.DataTypeIDInt64
	case DataTypeString:
		return ua.DataTypeIDString
	case DataTypeBool:
		return ua.DataTypeIDBoolean
	case DataTypeDateTime:
		return ua.DataTypeIDDateTime
	default:
		return ua.DataTypeIDDouble
	}
}

// NamespaceNodes holds nodes for a specific namespace
type NamespaceNodes struct {
	Namespace  uint16
	FolderName string
	FolderDesc string
	NodeDefs   []NodeDefinition // Store definitions for deferred registration
	VarNodes   map[string]*server.VariableNode
	Values     map[string]interface{}
}

// Server wraps the OPC UA server and manages node values for multiple
// namespaces. When the underlying server cannot start, the wrapper degrades
// to value storage: updates still land in Values and stay readable, only
// the network endpoint is missing.
type Server struct {
	srv  *server.Server
	port int
	mu   sync.RWMutex

	namespaces map[uint16]*NamespaceNodes
}

// NewServer creates a new OPC UA server
func NewServer(port int) (*Server, error) {
	s := &Server{
		port:       port,
		namespaces: make(map[uint16]*NamespaceNodes),
	}

	return s, nil
}

// ensurePKI creates PKI directory and self-signed certificates if they don't exist
func ensurePKI(appName string) error {
	// Check if cert already exists
	if _, err := os.Stat(certFile); err == nil {
		log.Info().Str("certFile", certFile).Msg("Using existing PKI certificates")
		return nil
	}

	log.Info().Msg("Generating self-signed certificates for OPC UA server")

	// Create PKI directory
	if err := os.MkdirAll(pkiDir, 0755); err != nil {
		return fmt.Errorf("failed to create PKI directory: %w", err)
	}

	// Generate self-signed certificate
	return createSelfSignedCert(appName, certFile, keyFile)
}

// createSelfSignedCert generates a self-signed certificate for OPC UA server
func createSelfSignedCert(appName, certPath, keyPath string) error {
	// Generate RSA key pair
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("failed to generate private key: %w", err)
	}

	// Create certificate template
	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName:   appName,
			Organization: []string{"Mill Forecaster"},
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour), // 1 year validity
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost", appName, "mill-forecaster"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("0.0.0.0")},
	}

	// Add OPC UA application URI as SAN
	template.URIs = []*url.URL{
		{Scheme: "urn", Opaque: "mill-forecaster:tonnage"},
	}

	// Create self-signed certificate
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return fmt.Errorf("failed to create certificate: %w", err)
	}

	// Write certificate to file
	certFileHandle, err := os.Create(certPath)
	if err != nil {
		return fmt.Errorf("failed to create cert file: %w", err)
	}
	defer certFileHandle.Close()

	if err := pem.Encode(certFileHandle, &pem.Block{Type: "CERTIFICATE", Bytes: certDER}); err != nil {
		return fmt.Errorf("failed to encode certificate: %w", err)
	}

	// Write private key to file
	keyFileHandle, err := os.Create(keyPath)
	if err != nil {
		return fmt.Errorf("failed to create key file: %w", err)
	}
	defer keyFileHandle.Close()

	keyDER := x509.MarshalPKCS1PrivateKey(privateKey)
	if err := pem.Encode(keyFileHandle, &pem.Block{Type: "RSA PRIVATE KEY", Bytes: keyDER}); err != nil {
		return fmt.Errorf("failed to encode private key: %w", err)
	}

	log.Info().
		Str("certPath", certPath).
		Str("keyPath", keyPath).
		Msg("Self-signed certificates generated successfully")

	return nil
}

// Start starts the OPC UA server
func (s *Server) Start(ctx context.Context) error {
	endpoint := fmt.Sprintf("opc.tcp://0.0.0.0:%d", s.port)

	log.Info().
		Int("port", s.port).
		Str("endpoint", endpoint).
		Msg("Starting OPC UA server")

	// Generate self-signed certificates if needed
	if err := ensurePKI("MillForecaster"); err != nil {
		log.Warn().Err(err).Msg("Failed to create PKI - OPC UA server disabled")
		log.Info().Msg("OPC UA server disabled - running in value storage mode only")
		return nil
	}

	// Try to create the OPC UA server with panic recovery
	var srv *server.Server
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Warn().
					Interface("panic", r).
					Msg("OPC UA server creation panicked - running in value storage mode only")
			}
		}()

		var err error
		srv, err = server.New(
			ua.ApplicationDescription{
				ApplicationURI:  "urn:mill-forecaster:tonnage",
				ProductURI:      "urn:mill-forecaster",
				ApplicationName: ua.LocalizedText{Text: "Mill Tonnage Forecaster", Locale: "en"},
				ApplicationType: ua.ApplicationTypeServer,
			},
			certFile, // Self-signed certificate
			keyFile,  // Private key
			endpoint,
			server.WithAnonymousIdentity(true),
			server.WithSecurityPolicyNone(true),
			server.WithInsecureSkipVerify(),
		)
		if err != nil {
			log.Warn().
				Err(err).
				Msg("OPC UA server creation failed - running in value storage mode only")
			srv = nil
		}
	}()

	if srv == nil {
		log.Info().Msg("OPC UA server disabled - running in value storage mode only")
		return nil
	}

	s.srv = srv

	// Register namespaces stored before the server came up
	if err := s.registerPendingNamespaces(); err != nil {
		log.Error().Err(err).Msg("Failed to register pending namespaces")
		return err
	}

	// Start server in background
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("OPC UA server panic")
			}
		}()
		if err := srv.ListenAndServe(); err != nil {
			log.Error().Err(err).Msg("OPC UA server error")
		}
	}()

	log.Info().Msg("OPC UA server started successfully")
	return nil
}

// Stop stops the OPC UA server
func (s *Server) Stop(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Close()
	}
	return nil
}

// RegisterNamespace creates a new namespace with a root folder and variable
// nodes. Called before Start, the definitions are stored and registered once
// the server is available.
func (s *Server) RegisterNamespace(nsIndex uint16, folderName, folderDesc string, nodes []NodeDefinition) error {
	if s.srv == nil {
		// Store namespace info for deferred registration when server starts
		ns := &NamespaceNodes{
			Namespace:  nsIndex,
			FolderName: folderName,
			FolderDesc: folderDesc,
			NodeDefs:   nodes, // Store for later registration
			VarNodes:   make(map[string]*server.VariableNode),
			Values:     make(map[string]interface{}),
		}
		for _, nodeDef := range nodes {
			ns.Values[nodeDef.Name] = nodeDef.InitialValue
		}
		s.namespaces[nsIndex] = ns
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nm := s.srv.NamespaceManager()

	// Create folder node under Objects folder
	folder := server.NewObjectNode(
		s.srv,
		ua.NodeIDString{NamespaceIndex: nsIndex, ID: folderName},
		ua.QualifiedName{NamespaceIndex: nsIndex, Name: folderName},
		ua.LocalizedText{Text: folderName},
		ua.LocalizedText{Text: folderDesc},
		nil,
		[]ua.Reference{
			{
				ReferenceTypeID: ua.ReferenceTypeIDOrganizes,
				IsInverse:       true,
				TargetID:        ua.ExpandedNodeID{NodeID: ua.ObjectIDObjectsFolder},
			},
		},
		0,
	)
	nm.AddNode(folder)

	// Create namespace nodes storage
	ns := &NamespaceNodes{
		Namespace:  nsIndex,
		FolderName: folderName,
		VarNodes:   make(map[string]*server.VariableNode),
		Values:     make(map[string]interface{}),
	}

	// Create variable nodes
	for _, nodeDef := range nodes {
		varNode := s.newVariableNode(nsIndex, folderName, nodeDef)
		nm.AddNode(varNode)
		ns.VarNodes[nodeDef.Name] = varNode
		ns.Values[nodeDef.Name] = nodeDef.InitialValue
	}

	s.namespaces[nsIndex] = ns

	log.Info().
		Uint16("namespace", nsIndex).
		Str("folder", folderName).
		Int("nodes", len(nodes)).
		Msg("Registered OPC UA namespace")

	return nil
}

// UpdateNamespaceValues updates all values for a namespace
func (s *Server) UpdateNamespaceValues(nsIndex uint16, values map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.namespaces[nsIndex]
	if !ok {
		return
	}

	now := time.Now().UTC()
	for name, value := range values {
		ns.Values[name] = value
		if varNode, ok := ns.VarNodes[name]; ok {
			varNode.SetValue(ua.NewDataValue(value, 0, now, 0, now, 0))
		}
	}
}

// registerPendingNamespaces registers all stored namespaces after server is available
func (s *Server) registerPendingNamespaces() error {
	nm := s.srv.NamespaceManager()
	nodeCount := 0

	for nsIndex, ns := range s.namespaces {
		// Create folder node under Objects folder
		folder := server.NewObjectNode(
			s.srv,
			ua.NodeIDString{NamespaceIndex: nsIndex, ID: ns.FolderName},
			ua.QualifiedName{NamespaceIndex: nsIndex, Name: ns.FolderName},
			ua.LocalizedText{Text: ns.FolderName},
			ua.LocalizedText{Text: ns.FolderDesc},
			nil,
			[]ua.Reference{
				{
					ReferenceTypeID: ua.ReferenceTypeIDOrganizes,
					IsInverse:       true,
					TargetID:        ua.ExpandedNodeID{NodeID: ua.ObjectIDObjectsFolder},
				},
			},
			0,
		)
		nm.AddNode(folder)

		// Create variable nodes from stored definitions
		for _, nodeDef := range ns.NodeDefs {
			varNode := s.newVariableNode(nsIndex, ns.FolderName, nodeDef)
			nm.AddNode(varNode)
			ns.VarNodes[nodeDef.Name] = varNode
			nodeCount++
		}

		log.Info().
			Uint16("namespace", nsIndex).
			Str("folder", ns.FolderName).
			Int("nodes", len(ns.NodeDefs)).
			Msg("Registered OPC UA namespace")
	}

	log.Info().Int("count", nodeCount).Msg("OPC UA nodes registered in address space")
	return nil
}

func (s *Server) newVariableNode(nsIndex uint16, folderName string, nodeDef NodeDefinition) *server.VariableNode {
	return server.NewVariableNode(
		s.srv,
		ua.NodeIDString{NamespaceIndex: nsIndex, ID: folderName + "." + nodeDef.Name},
		ua.QualifiedName{NamespaceIndex: nsIndex, Name: nodeDef.Name},
		ua.LocalizedText{Text: nodeDef.DisplayName},
		ua.LocalizedText{Text: nodeDef.Description},
		nil,
		[]ua.Reference{
			{
				ReferenceTypeID: ua.ReferenceTypeIDHasComponent,
				IsInverse:       true,
				TargetID:        ua.ExpandedNodeID{NodeID: ua.NodeIDString{NamespaceIndex: nsIndex, ID: folderName}},
			},
		},
		ua.NewDataValue(nodeDef.InitialValue, 0, time.Now().UTC(), 0, time.Now().UTC(), 0),
		dataTypeID(nodeDef.DataType),
		ua.ValueRankScalar,
		[]uint32{},
		ua.AccessLevelsCurrentRead,
		250.0,
		false,
		nil,
	)
}

// GetNamespaceValue returns a value from a namespace
func (s *Server) GetNamespaceValue(nsIndex uint16, name string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, ok := s.namespaces[nsIndex]
	if !ok {
		return nil, false
	}

	value, ok := ns.Values[name]
	return value, ok
}
